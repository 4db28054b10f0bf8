package models

// StateOutcome is the per-state result of one search invocation.
type StateOutcome struct {
	State   string `json:"state"`
	Success bool   `json:"success"`
	Claims  int    `json:"claims"`
	Error   string `json:"error,omitempty"`
}

// SearchSummary aggregates a whole search invocation.
type SearchSummary struct {
	ProfileID   string         `json:"profile_id"`
	Results     []StateOutcome `json:"results"`
	TotalClaims int            `json:"total_claims"`
}

// JobCounts summarizes a user's search jobs for the results endpoint.
type JobCounts struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

// DripReport is the outcome of one scheduler batch.
type DripReport struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
	Total     int `json:"total"`
}
