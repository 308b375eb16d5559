package model

import "time"

// HubStats is a point-in-time snapshot of the connection registry, served to
// the control plane by the status endpoint.
type HubStats struct {
	ConnectedUsers   int           `json:"connected_users"`
	TotalConnections int           `json:"total_connections"`
	Uptime           time.Duration `json:"-"`
}
