package models

// WorkItem is one stored record awaiting detail extraction. Title doubles as
// the locator used to find the item in the live listing.
type WorkItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	FailureCount int    `json:"failureCount"`
}

// BatchProcessRequest drives one work-queue run against an existing session.
// Condition is an opaque predicate forwarded to storage as-is.
type BatchProcessRequest struct {
	SessionID    string  `json:"sessionId"`
	Condition    string  `json:"condition,omitempty"`
	Limit        int     `json:"limit,omitempty"`
	DelaySeconds float64 `json:"delaySeconds,omitempty"`
	ReturnURL    string  `json:"returnUrl,omitempty"`
}

// DiscoverRequest drives one listing-discovery pass: scroll the listing,
// extract the visible posts, and enqueue them as work items.
type DiscoverRequest struct {
	SessionID  string `json:"sessionId"`
	MaxScrolls int    `json:"maxScrolls,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// DiscoverReport is the outcome of one discovery pass.
type DiscoverReport struct {
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
	Discovered    int     `json:"discoveredItems"`
	ExecutionTime float64 `json:"executionTime"`
	ViewerURL     string  `json:"viewerUrl,omitempty"`
}

// BatchReport is the aggregate outcome of one work-queue run.
type BatchReport struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	Total         int      `json:"totalItems"`
	Processed     int      `json:"processedItems"`
	Failed        int      `json:"failedItems"`
	SuccessRate   float64  `json:"successRate"`
	ProcessedIDs  []string `json:"processedIds"`
	FailedIDs     []string `json:"failedIds"`
	ExecutionTime float64  `json:"executionTime"`
	ViewerURL     string   `json:"viewerUrl,omitempty"`
}
