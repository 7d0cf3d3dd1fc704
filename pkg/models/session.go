package models

import "time"

// SessionStatus represents the current state of a sandbox session
type SessionStatus string

const (
	StatusActive    SessionStatus = "ACTIVE"
	StatusStale     SessionStatus = "STALE"
	StatusDestroyed SessionStatus = "DESTROYED"
)

// Session maps a stable logical id to one remote sandbox. The logical id
// survives sandbox replacement; SandboxID does not.
type Session struct {
	ID          string        `json:"id"`
	SandboxID   string        `json:"sandboxId"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	LastUsedAt  time.Time     `json:"lastUsedAt"`
	Timeout     int           `json:"timeout"`
	AgentURL    string        `json:"-"`
	ViewerURL   string        `json:"viewerUrl"`
	DevtoolsURL string        `json:"devtoolsUrl"`
	ContainerID string        `json:"-"`
}

// SessionSummary is the read-only view returned by list endpoints.
type SessionSummary struct {
	ID         string        `json:"id"`
	SandboxID  string        `json:"sandboxId"`
	Status     SessionStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	LastUsedAt time.Time     `json:"lastUsedAt"`
	ViewerURL  string        `json:"viewerUrl"`
}

// AcquireSessionRequest is the payload for acquiring a session. A request
// without a sessionId always provisions a fresh sandbox.
type AcquireSessionRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
}

// AcquireSessionResponse reports whether an existing sandbox was reused.
type AcquireSessionResponse struct {
	Session *Session `json:"session"`
	Reused  bool     `json:"reused"`
}
