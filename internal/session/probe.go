package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/driftware/harvester/pkg/models"
)

// HTTPProbe returns a ProbeFunc that pings the agent's health endpoint with
// a short timeout. A trivial remote round-trip is enough to tell a live
// sandbox from a dead one.
func HTTPProbe(timeout time.Duration) ProbeFunc {
	client := resty.New().SetTimeout(timeout)

	return func(ctx context.Context, sess *models.Session) error {
		resp, err := client.R().SetContext(ctx).Get(sess.AgentURL + "/healthz")
		if err != nil {
			return fmt.Errorf("liveness probe failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("liveness probe returned HTTP %d", resp.StatusCode())
		}
		return nil
	}
}
