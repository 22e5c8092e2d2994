package domain

import "time"

// PresenceRecord is the stored presence state for one user. Created lazily on
// first connection or first explicit status set; never hard-deleted, only
// reset to offline.
type PresenceRecord struct {
	UserID            UserID         `json:"user_id"`
	Status            PresenceStatus `json:"status"`
	CustomStatus      string         `json:"custom_status,omitempty"`
	LastSeen          time.Time      `json:"last_seen"`
	ActiveConnections int            `json:"active_connections"`

	// LastExplicit remembers the status the user chose themselves, so a
	// reconnect restores away/busy/invisible instead of forcing online.
	LastExplicit PresenceStatus `json:"last_explicit,omitempty"`

	ShowOnlineStatus bool `json:"show_online_status"`
	ShowLastSeen     bool `json:"show_last_seen"`
}

// NewPresenceRecord returns the default record for a user nobody has seen yet.
func NewPresenceRecord(userID UserID) PresenceRecord {
	return PresenceRecord{
		UserID:           userID,
		Status:           StatusOffline,
		ShowOnlineStatus: true,
		ShowLastSeen:     true,
	}
}

// PresenceView is the privacy-filtered projection one user sees of another.
type PresenceView struct {
	UserID       UserID         `json:"user_id"`
	Status       PresenceStatus `json:"status"`
	CustomStatus string         `json:"custom_status,omitempty"`
	LastSeen     time.Time      `json:"last_seen,omitempty"`
}
