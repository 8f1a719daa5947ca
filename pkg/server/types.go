package server

import "time"

// HealthResponse is the response for the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for the ready endpoint.
type ReadyResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Revision uint64            `json:"revision,omitempty"`
}

// ErrorResponse wraps an error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Field       string   `json:"field,omitempty"`
	Layer       string   `json:"layer,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// ReportSummary is one entry of the report listing.
type ReportSummary struct {
	ID          string    `json:"id"`
	Target      string    `json:"target"`
	PlanID      string    `json:"planId"`
	WaveCount   int       `json:"waveCount"`
	LayerCount  int       `json:"layerCount"`
	ManualCount int       `json:"manualCount"`
	CreatedAt   time.Time `json:"createdAt"`
}
