package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/expflow/expflow/pkg/models"
)

// runNode simulates the work of one node, writing progress lines to the
// job's log buffer. Returns the job data the inspector view shows. A
// cancelled context aborts mid-step.
func (e *Executor) runNode(ctx context.Context, node *models.Node, buffer *LogBuffer) (models.JobData, error) {
	switch params := node.Parameters.(type) {
	case models.TrainParameters:
		return e.runTrain(ctx, node, params, buffer)
	case models.EvalParameters:
		return e.runEval(ctx, node, params, buffer)
	case models.DownloadModelParameters:
		return e.runDownloadModel(ctx, node, params, buffer)
	case models.OtherParameters:
		return e.runOther(ctx, node, params, buffer)
	default:
		return models.JobData{}, fmt.Errorf("node %s has no parameters", node.ID)
	}
}

func (e *Executor) runTrain(ctx context.Context, node *models.Node, params models.TrainParameters, buffer *LogBuffer) (models.JobData, error) {
	buffer.Append(fmt.Sprintf("starting training task %q with template %q", node.Name, params.Template))

	const epochs = 5

	loss := 2.0 + rand.Float64()

	for epoch := 1; epoch <= epochs; epoch++ {
		if err := e.step(ctx); err != nil {
			return models.JobData{}, err
		}

		loss *= 0.6 + rand.Float64()*0.2
		buffer.Append(fmt.Sprintf("epoch %d/%d loss=%.4f", epoch, epochs, loss))
	}

	buffer.Append("training complete, checkpoint saved")

	return models.JobData{ModelName: params.Template}, nil
}

func (e *Executor) runEval(ctx context.Context, node *models.Node, params models.EvalParameters, buffer *LogBuffer) (models.JobData, error) {
	buffer.Append(fmt.Sprintf("starting evaluation %q with template %q", node.Name, params.Template))

	scores := []models.Score{
		{Type: "accuracy", Score: 0.5 + rand.Float64()*0.5},
		{Type: "f1", Score: 0.5 + rand.Float64()*0.5},
	}

	for _, score := range scores {
		if err := e.step(ctx); err != nil {
			return models.JobData{}, err
		}

		buffer.Append(fmt.Sprintf("%s: %.4f", score.Type, score.Score))
	}

	encoded, err := json.Marshal(scores)
	if err != nil {
		return models.JobData{}, fmt.Errorf("encode scores: %w", err)
	}

	buffer.Append("evaluation complete")

	return models.JobData{
		Evaluator: params.Template,
		Score:     string(encoded),
	}, nil
}

func (e *Executor) runDownloadModel(ctx context.Context, node *models.Node, params models.DownloadModelParameters, buffer *LogBuffer) (models.JobData, error) {
	buffer.Append(fmt.Sprintf("downloading model %q", params.Model))

	for _, pct := range []int{25, 50, 75, 100} {
		if err := e.step(ctx); err != nil {
			return models.JobData{}, err
		}

		buffer.Append(fmt.Sprintf("download %d%%", pct))
	}

	buffer.Append("download complete")

	return models.JobData{ModelName: params.Model}, nil
}

func (e *Executor) runOther(ctx context.Context, node *models.Node, params models.OtherParameters, buffer *LogBuffer) (models.JobData, error) {
	buffer.Append(fmt.Sprintf("running task %q", node.Name))

	if err := e.step(ctx); err != nil {
		return models.JobData{}, err
	}

	for key, value := range params {
		if key == "name" {
			continue
		}

		buffer.Append(fmt.Sprintf("%s=%v", key, value))
	}

	buffer.Append("task complete")

	return models.JobData{}, nil
}

// step sleeps for the configured work duration or aborts on cancellation.
func (e *Executor) step(ctx context.Context) error {
	timer := time.NewTimer(e.stepDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
