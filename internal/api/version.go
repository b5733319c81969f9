// Package api provides the HTTP handlers for the booking server.
package api

// ServiceName is reported by /status and /health
const ServiceName = "booking-backend"

// StatusResponse is the response from the /status endpoint.
type StatusResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Storage     string `json:"storage"`
	Connections int    `json:"connections"`
	Orders      int    `json:"orders"`
}
