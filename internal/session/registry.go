package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/driftware/harvester/internal/sandbox"
	"github.com/driftware/harvester/pkg/models"
)

// Provider is the slice of the sandbox provider the registry needs.
type Provider interface {
	Create(ctx context.Context, sessionID string) (*sandbox.Sandbox, error)
	Destroy(ctx context.Context, containerID string) error
}

// ProbeFunc checks whether a session's sandbox still answers. It must
// respect a short deadline of its own.
type ProbeFunc func(ctx context.Context, sess *models.Session) error

// Options configures a Registry.
type Options struct {
	Provider Provider
	// Probe defaults to an HTTP health check against the agent.
	Probe ProbeFunc
	// MaxSessions caps concurrently live sandboxes. Defaults to 10.
	MaxSessions int64
	// DefaultTimeout is the idle lifetime of a session in seconds before
	// automatic teardown. Defaults to 1800.
	DefaultTimeout int
}

// Registry owns the map of logical session ids to live sandboxes. All
// mutations go through the registry; there is no ambient global state.
type Registry struct {
	mu             sync.RWMutex
	sessions       map[string]*models.Session
	provider       Provider
	probe          ProbeFunc
	slots          *semaphore.Weighted
	defaultTimeout int

	// lockMu guards locks, one entry per session id. Acquire holds the
	// per-id lock across its probe-evict-create sequence so concurrent
	// acquires of the same id cannot both provision.
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewRegistry(opts Options) *Registry {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 1800
	}
	probe := opts.Probe
	if probe == nil {
		probe = HTTPProbe(5 * time.Second)
	}

	return &Registry{
		sessions:       make(map[string]*models.Session),
		provider:       opts.Provider,
		probe:          probe,
		slots:          semaphore.NewWeighted(opts.MaxSessions),
		defaultTimeout: opts.DefaultTimeout,
		locks:          make(map[string]*sync.Mutex),
	}
}

// Acquire returns a live session for the given id, reusing an existing
// sandbox when its liveness probe passes. A failing probe evicts the stale
// entry and provisions a replacement under the same id. An empty id always
// provisions a fresh sandbox under a generated id. The returned bool
// reports reuse. Acquires of the same id are serialized: at most one live
// sandbox ever exists per session id, the loser of a race reuses the
// winner's.
func (r *Registry) Acquire(ctx context.Context, sessionID string, timeout int) (*models.Session, bool, error) {
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	lock := r.idLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	existing, ok := r.sessions[sessionID]
	r.mu.RUnlock()

	if ok {
		if err := r.probe(ctx, existing); err == nil {
			r.mu.Lock()
			existing.LastUsedAt = time.Now()
			existing.Status = models.StatusActive
			r.mu.Unlock()

			slog.Info("reusing existing session", "session_id", sessionID, "sandbox_id", existing.SandboxID)
			return existing, true, nil
		}

		// Stale sandbox: evict silently and fall through to creation.
		slog.Warn("session failed liveness probe, evicting", "session_id", sessionID, "sandbox_id", existing.SandboxID)
		r.evict(sessionID)
	}

	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	if !r.slots.TryAcquire(1) {
		return nil, false, fmt.Errorf("session limit reached, release a session first")
	}

	slog.Info("provisioning sandbox", "session_id", sessionID)
	sb, err := r.provider.Create(ctx, sessionID)
	if err != nil {
		r.slots.Release(1)
		return nil, false, fmt.Errorf("failed to provision sandbox: %w", err)
	}

	now := time.Now()
	sess := &models.Session{
		ID:          sessionID,
		SandboxID:   sb.SandboxID,
		Status:      models.StatusActive,
		CreatedAt:   now,
		LastUsedAt:  now,
		Timeout:     timeout,
		AgentURL:    sb.AgentURL,
		ViewerURL:   sb.ViewerURL,
		DevtoolsURL: sb.DevtoolsURL,
		ContainerID: sb.ContainerID,
	}

	r.mu.Lock()
	r.sessions[sessionID] = sess
	r.mu.Unlock()

	go r.expireAfterTimeout(sess)

	slog.Info("session ready", "session_id", sessionID, "sandbox_id", sb.SandboxID, "viewer_url", sb.ViewerURL)
	return sess, false, nil
}

// Get returns a session without probing or recreating it. Unknown ids are
// an error, never a trigger for provisioning.
func (r *Registry) Get(id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return sess, nil
}

// Touch refreshes a session's last-used time after a successful operation.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[id]; ok {
		sess.LastUsedAt = time.Now()
	}
}

// Release tears down a session's sandbox and removes the registry entry.
// Releasing an unknown id is a no-op success.
func (r *Registry) Release(ctx context.Context, id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	r.slots.Release(1)
	sess.Status = models.StatusDestroyed

	if sess.ContainerID != "" {
		if err := r.provider.Destroy(ctx, sess.ContainerID); err != nil {
			slog.Warn("failed to destroy sandbox", "session_id", id, "error", err)
		}
	}

	slog.Info("session released", "session_id", id)
	return nil
}

// List returns a read-only snapshot of all registered sessions.
func (r *Registry) List() []models.SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]models.SessionSummary, 0, len(r.sessions))
	for _, sess := range r.sessions {
		summaries = append(summaries, models.SessionSummary{
			ID:         sess.ID,
			SandboxID:  sess.SandboxID,
			Status:     sess.Status,
			CreatedAt:  sess.CreatedAt,
			LastUsedAt: sess.LastUsedAt,
			ViewerURL:  sess.ViewerURL,
		})
	}
	return summaries
}

// ReleaseAll tears down every live session, used on shutdown.
func (r *Registry) ReleaseAll(ctx context.Context) {
	for _, summary := range r.List() {
		if err := r.Release(ctx, summary.ID); err != nil {
			slog.Warn("failed to release session on shutdown", "session_id", summary.ID, "error", err)
		}
	}
}

// evict removes a stale entry and destroys its container best-effort.
func (r *Registry) evict(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		sess.Status = models.StatusStale
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.slots.Release(1)
	if sess.ContainerID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.provider.Destroy(ctx, sess.ContainerID); err != nil {
			slog.Warn("failed to destroy stale sandbox", "session_id", id, "error", err)
		}
	}
}

// expireAfterTimeout tears down a session once it has been idle for its
// full timeout. Activity extends the deadline.
func (r *Registry) expireAfterTimeout(sess *models.Session) {
	for {
		r.mu.RLock()
		current, ok := r.sessions[sess.ID]
		var deadline time.Time
		if ok {
			deadline = current.LastUsedAt.Add(time.Duration(current.Timeout) * time.Second)
		}
		r.mu.RUnlock()

		if !ok || current.SandboxID != sess.SandboxID {
			return
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			slog.Info("session idle timeout reached", "session_id", sess.ID)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			r.Release(ctx, sess.ID)
			cancel()
			return
		}

		time.Sleep(remaining)
	}
}

// idLock returns the mutex serializing acquires of one session id.
func (r *Registry) idLock(id string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

func generateSessionID() string {
	return fmt.Sprintf("browser_%d_%s", time.Now().Unix(), uuid.New().String()[:8])
}
