package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/driftware/harvester/pkg/models"
)

// Dispatcher routes logical operations to the agent running inside a
// session's sandbox. One network call per resolved operation, strictly in
// submission order; browser state is a single shared resource per session,
// so nothing is parallelized.
type Dispatcher struct {
	client *resty.Client
}

// NewDispatcher builds a dispatcher whose calls are bounded by the given
// per-operation timeout.
func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Dispatcher{
		client: resty.New().SetTimeout(timeout),
	}
}

// Execute runs the operation list against the session's agent and returns
// one result per operation, in order. It never returns an error: every
// failure mode is folded into the per-operation results, and batch success
// is the strict AND of them.
func (d *Dispatcher) Execute(ctx context.Context, sess *models.Session, operations []models.Operation) models.BatchResult {
	start := time.Now()
	results := make([]models.OperationResult, 0, len(operations))

	for i, op := range operations {
		slog.Info("executing operation",
			"session_id", sess.ID,
			"action", op.Action,
			"step", fmt.Sprintf("%d/%d", i+1, len(operations)))

		result, resolved := d.executeOne(ctx, sess, op)
		results = append(results, result)

		if resolved && op.Required && !result.Success {
			// A failed required step aborts the rest of the batch. The
			// skipped operations still get results so callers can account
			// for every submitted step.
			for _, skipped := range operations[i+1:] {
				results = append(results, models.OperationResult{
					Action:  skipped.Action,
					Success: false,
					Message: fmt.Sprintf("skipped: required step %q failed", op.Action),
					Data:    map[string]any{},
				})
			}
			break
		}
	}

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}

	return models.BatchResult{
		Success:       successful == len(results),
		Message:       fmt.Sprintf("batch complete: %d/%d operations succeeded", successful, len(results)),
		Total:         len(results),
		Successful:    successful,
		Results:       results,
		ExecutionTime: time.Since(start).Seconds(),
	}
}

// executeOne dispatches a single operation. The second return reports
// whether the action resolved to an endpoint; unsupported operations are a
// local failure without a network call and never abort the batch, required
// or not.
func (d *Dispatcher) executeOne(ctx context.Context, sess *models.Session, op models.Operation) (models.OperationResult, bool) {
	endpoint, ok := Resolve(op.Action)
	if !ok {
		return models.OperationResult{
			Action:  op.Action,
			Success: false,
			Message: fmt.Sprintf("unsupported operation: %s", op.Action),
			Data:    map[string]any{},
		}, false
	}

	var body map[string]any
	if endpoint.Prepare != nil {
		body = endpoint.Prepare(op.Params)
	} else {
		body = map[string]any{}
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(sess.AgentURL + endpoint.Path)

	if err != nil {
		return models.OperationResult{
			Action:  op.Action,
			Success: false,
			Message: fmt.Sprintf("request failed: %v", err),
			Data:    map[string]any{},
		}, true
	}

	if resp.IsError() {
		return models.OperationResult{
			Action:     op.Action,
			Success:    false,
			Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), resp.String()),
			Data:       map[string]any{},
			StatusCode: resp.StatusCode(),
		}, true
	}

	var agentResp models.AgentResponse
	if err := json.Unmarshal(resp.Body(), &agentResp); err != nil {
		return models.OperationResult{
			Action:     op.Action,
			Success:    false,
			Message:    fmt.Sprintf("malformed agent response: %v", err),
			Data:       map[string]any{},
			StatusCode: resp.StatusCode(),
		}, true
	}

	message := agentResp.Message
	if message == "" {
		message = "operation complete"
	}
	data := agentResp.Data
	if data == nil {
		data = map[string]any{}
	}

	return models.OperationResult{
		Action:     op.Action,
		Success:    agentResp.Success,
		Message:    message,
		Data:       data,
		StatusCode: resp.StatusCode(),
	}, true
}
