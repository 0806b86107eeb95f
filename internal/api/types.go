package api

import "time"

// HealthResponse represents the liveness response
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
}

// ReadinessResponse represents the readiness response
type ReadinessResponse struct {
	Status string `json:"status" example:"ready"`
	Health string `json:"health" example:"Healthy"`
}

// StatusResponse is the persisted sync status plus the live health signal
type StatusResponse struct {
	SyncStatus   string     `json:"syncStatus" example:"Running"`
	NextSyncTime *time.Time `json:"nextSyncTime"`
	Health       string     `json:"health" example:"Healthy"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}
