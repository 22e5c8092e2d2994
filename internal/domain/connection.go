package domain

import "time"

// ConnectionID is globally unique; a UserID may map to 0..N live connections.
type ConnectionID string

// ConnectionInfo is a read-only view of one live connection, used by the
// reaper and for diagnostics. The transport handle itself stays inside the
// registry.
type ConnectionInfo struct {
	ID             ConnectionID `json:"id"`
	UserID         UserID       `json:"user_id"`
	ConnectedAt    time.Time    `json:"connected_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
}
