package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftware/harvester/internal/sandbox"
	"github.com/driftware/harvester/pkg/models"
)

// fakeProvider provisions in-memory sandboxes and records teardowns.
type fakeProvider struct {
	mu          sync.Mutex
	created     int
	destroyed   []string
	createErr   error
	createDelay time.Duration
}

func (p *fakeProvider) Create(ctx context.Context, sessionID string) (*sandbox.Sandbox, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.createDelay > 0 {
		time.Sleep(p.createDelay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.created++
	return &sandbox.Sandbox{
		ContainerID: fmt.Sprintf("container-%d", p.created),
		SandboxID:   fmt.Sprintf("sb-%d", p.created),
		AgentURL:    fmt.Sprintf("http://localhost:%d", 30000+p.created),
		ViewerURL:   fmt.Sprintf("http://localhost:%d/vnc.html", 31000+p.created),
	}, nil
}

func (p *fakeProvider) Destroy(ctx context.Context, containerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyed = append(p.destroyed, containerID)
	return nil
}

func alwaysHealthy(ctx context.Context, sess *models.Session) error { return nil }

func alwaysDead(ctx context.Context, sess *models.Session) error {
	return errors.New("probe: connection refused")
}

func newTestRegistry(provider *fakeProvider, probe ProbeFunc, max int64) *Registry {
	return NewRegistry(Options{
		Provider:       provider,
		Probe:          probe,
		MaxSessions:    max,
		DefaultTimeout: 3600,
	})
}

func TestAcquireFreshSession(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRegistry(provider, alwaysHealthy, 5)

	sess, reused, err := r.Acquire(ctx, "", 0)
	require.NoError(t, err)
	require.False(t, reused)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, "sb-1", sess.SandboxID)
	require.Equal(t, models.StatusActive, sess.Status)
	require.Equal(t, 3600, sess.Timeout)
}

func TestAcquireReusesHealthySession(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRegistry(provider, alwaysHealthy, 5)

	first, _, err := r.Acquire(ctx, "", 0)
	require.NoError(t, err)

	second, reused, err := r.Acquire(ctx, first.ID, 0)
	require.NoError(t, err)
	require.True(t, reused)
	require.Equal(t, first.SandboxID, second.SandboxID)
	require.Equal(t, 1, provider.created)
}

func TestAcquireReplacesStaleSession(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRegistry(provider, alwaysHealthy, 5)

	first, _, err := r.Acquire(ctx, "", 0)
	require.NoError(t, err)

	// Flip the probe so the existing sandbox looks dead.
	r.probe = alwaysDead

	second, reused, err := r.Acquire(ctx, first.ID, 0)
	require.NoError(t, err)
	require.False(t, reused)
	require.Equal(t, first.ID, second.ID)
	require.NotEqual(t, first.SandboxID, second.SandboxID)

	// The stale container was torn down.
	require.Equal(t, []string{"container-1"}, provider.destroyed)
}

func TestAcquireConcurrentSameID(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{createDelay: 50 * time.Millisecond}
	r := newTestRegistry(provider, alwaysHealthy, 5)

	var wg sync.WaitGroup
	sessions := make([]*models.Session, 2)
	reused := make([]bool, 2)
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], reused[i], errs[i] = r.Acquire(ctx, "browser_shared", 0)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// One live sandbox per id: exactly one provision, the racing call
	// reuses it.
	require.Equal(t, 1, provider.created)
	require.Empty(t, provider.destroyed)
	require.Equal(t, sessions[0].SandboxID, sessions[1].SandboxID)
	require.NotEqual(t, reused[0], reused[1])
	require.Len(t, r.List(), 1)
}

func TestAcquireUnknownIDProvisionsUnderThatID(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRegistry(provider, alwaysHealthy, 5)

	sess, reused, err := r.Acquire(ctx, "browser_custom", 0)
	require.NoError(t, err)
	require.False(t, reused)
	require.Equal(t, "browser_custom", sess.ID)
}

func TestAcquireSessionLimit(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRegistry(provider, alwaysHealthy, 2)

	_, _, err := r.Acquire(ctx, "", 0)
	require.NoError(t, err)
	_, _, err = r.Acquire(ctx, "", 0)
	require.NoError(t, err)

	_, _, err = r.Acquire(ctx, "", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "session limit")
}

func TestReleaseFreesSlot(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRegistry(provider, alwaysHealthy, 1)

	sess, _, err := r.Acquire(ctx, "", 0)
	require.NoError(t, err)

	require.NoError(t, r.Release(ctx, sess.ID))
	require.Equal(t, []string{"container-1"}, provider.destroyed)

	_, _, err = r.Acquire(ctx, "", 0)
	require.NoError(t, err)
}

func TestReleaseUnknownIDIsNoOp(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRegistry(provider, alwaysHealthy, 5)

	require.NoError(t, r.Release(ctx, "browser_never_existed"))
	require.Empty(t, provider.destroyed)
}

func TestGetNeverProvisions(t *testing.T) {
	provider := &fakeProvider{}
	r := newTestRegistry(provider, alwaysHealthy, 5)

	_, err := r.Get("browser_missing")
	require.Error(t, err)
	require.Zero(t, provider.created)
}

func TestProvisionFailureReleasesSlot(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{createErr: errors.New("image not found")}
	r := newTestRegistry(provider, alwaysHealthy, 1)

	_, _, err := r.Acquire(ctx, "", 0)
	require.Error(t, err)

	// The failed attempt must not leak its slot.
	provider.createErr = nil
	_, _, err = r.Acquire(ctx, "", 0)
	require.NoError(t, err)
}

func TestListAndReleaseAll(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	r := newTestRegistry(provider, alwaysHealthy, 5)

	_, _, err := r.Acquire(ctx, "", 0)
	require.NoError(t, err)
	_, _, err = r.Acquire(ctx, "", 0)
	require.NoError(t, err)

	require.Len(t, r.List(), 2)

	r.ReleaseAll(ctx)
	require.Empty(t, r.List())
	require.Len(t, provider.destroyed, 2)
}
