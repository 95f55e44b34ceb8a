package client

import (
	"bufio"
	"context"
	"net/http"

	"github.com/expflow/expflow/pkg/models"
)

// GetJob returns a job's full detail. The score field inside is decoded
// defensively via models.JobData.Scores: malformed score documents degrade
// to an empty list.
func (c *Client) GetJob(ctx context.Context, jobID string) (*models.JobDetail, error) {
	detail := &models.JobDetail{}
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID, nil, detail); err != nil {
		return nil, err
	}

	return detail, nil
}

// StreamJobOutput opens the live log stream of a job. The returned channel
// first replays the retained history, then carries live lines, and closes
// when the job reaches a terminal state or ctx is cancelled. Re-opening the
// stream replays from the start of history again.
//
// Streaming requests do not use the client timeout: the stream stays open
// for as long as the job runs.
func (c *Client) StreamJobOutput(ctx context.Context, jobID string) (<-chan string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID+"/output", nil)
	if err != nil {
		return nil, err
	}

	streaming := &http.Client{Transport: c.httpClient.Transport}

	resp, err := streaming.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "GET /jobs/" + jobID + "/output", Err: err}
	}

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()

		return nil, err
	}

	lines := make(chan string)

	go func() {
		defer close(lines)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			case lines <- scanner.Text():
			}
		}
	}()

	return lines, nil
}
