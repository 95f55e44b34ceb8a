package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expflow/expflow/pkg/models"
)

func TestClientDecodesProblemResponses(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"type":   "run_not_found",
			"status": 404,
			"detail": "run not found",
		})
	}))
	defer server.Close()

	c := New(server.URL)

	_, err := c.GetRun(context.Background(), "missing")
	require.Error(t, err)

	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransportError(err))
	assert.Contains(t, err.Error(), "run_not_found")
}

func TestClientValidationAndParseErrors(t *testing.T) {
	t.Parallel()

	problemType := "validation_error"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"type":   problemType,
			"status": 400,
		})
	}))
	defer server.Close()

	c := New(server.URL)

	_, err := c.CreateWorkflow(context.Background(), "", "")
	assert.True(t, IsValidationError(err))
	assert.False(t, IsParseError(err))

	problemType = "parse_error"

	_, err = c.ImportWorkflow(context.Background(), "E1", []byte("broken"))
	assert.True(t, IsParseError(err))
	assert.False(t, IsValidationError(err))
}

func TestClientTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := New(server.URL)

	_, err := c.ListRuns(context.Background(), "E1")
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
}

func TestClientTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	c := New(server.URL, WithTimeout(20*time.Millisecond))

	_, err := c.ListWorkflows(context.Background(), "E1")
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
}

func TestStreamJobOutput(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/jobs/job-1/output", r.URL.Path)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		flusher := w.(http.Flusher)

		for i := 1; i <= 3; i++ {
			fmt.Fprintf(w, "line %d\n", i)
			flusher.Flush()
		}
	}))
	defer server.Close()

	c := New(server.URL)

	lines, err := c.StreamJobOutput(context.Background(), "job-1")
	require.NoError(t, err)

	var got []string
	for line := range lines {
		got = append(got, line)
	}

	assert.Equal(t, []string{"line 1", "line 2", "line 3"}, got)
}

func TestStreamJobOutputNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"type": "job_not_found", "status": 404,
		})
	}))
	defer server.Close()

	c := New(server.URL)

	_, err := c.StreamJobOutput(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestGetJobDegradesMalformedScore(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.JobDetail{ //nolint:errcheck
			ID:     "job-1",
			RunID:  "run-1",
			Status: models.RunStatusComplete,
			JobData: models.JobData{
				Score: "{not valid json",
			},
		})
	}))
	defer server.Close()

	c := New(server.URL)

	detail, err := c.GetJob(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Empty(t, detail.JobData.Scores())
}

func TestAddOtherNodeMergesDocument(t *testing.T) {
	t.Parallel()

	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req addNodeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received = req.Parameters

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id": "n1", "name": req.Name, "type": req.Type,
			"parameters": req.Parameters,
		})
	}))
	defer server.Close()

	c := New(server.URL)

	node, err := c.AddOtherNode(context.Background(), "wf-1", "custom",
		[]byte(`{"script":"run.py","args":{"epochs":3}}`))
	require.NoError(t, err)

	assert.Equal(t, "n1", node.ID)
	assert.Equal(t, models.NodeTypeOther, node.Type)

	// The raw document is merged with the node name client-side.
	assert.Equal(t, "custom", received["name"])
	assert.Equal(t, "run.py", received["script"])
}

func TestAddOtherNodeRejectsMalformedDocument(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("malformed document must not reach the server")
	}))
	defer server.Close()

	c := New(server.URL)

	_, err := c.AddOtherNode(context.Background(), "wf-1", "custom", []byte(`{"script": run.py}`))

	var parseErr *models.ParseError
	require.ErrorAs(t, err, &parseErr)
}
