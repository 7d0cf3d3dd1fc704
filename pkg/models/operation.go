package models

// Operation is one logical browser action submitted for dispatch.
type Operation struct {
	Action      string         `json:"action"`
	Params      map[string]any `json:"params,omitempty"`
	Description string         `json:"description,omitempty"`
	Required    bool           `json:"required,omitempty"`
}

// OperationResult is the outcome of one dispatched operation. StatusCode is
// the raw transport status, zero when no network call was made.
type OperationResult struct {
	Action     string         `json:"action"`
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data"`
	StatusCode int            `json:"statusCode,omitempty"`
}

// BatchResult aggregates the results of one ordered operation batch.
// Success is strict: every operation must have succeeded.
type BatchResult struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	Total         int               `json:"totalOperations"`
	Successful    int               `json:"successfulOperations"`
	Results       []OperationResult `json:"results"`
	ExecutionTime float64           `json:"executionTime"`
}

// AgentResponse is the shared response shape of every agent endpoint.
type AgentResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// ExecuteRequest is the payload for running an operation batch on a session.
type ExecuteRequest struct {
	Operations []Operation `json:"operations"`
}
