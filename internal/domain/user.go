// Package domain contains entities without logic, just meta-data
package domain

import "errors"

const MaxCustomStatusLen = 128

var (
	ErrInvalidStatus       = errors.New("invalid presence status")
	ErrCustomStatusTooLong = errors.New("custom status too long")
)

type UserID string

// PresenceStatus is the coarse availability a user shows to others,
// distinct from raw connection count.
type PresenceStatus string

const (
	StatusOffline   PresenceStatus = "offline"
	StatusOnline    PresenceStatus = "online"
	StatusAway      PresenceStatus = "away"
	StatusBusy      PresenceStatus = "busy"
	StatusInvisible PresenceStatus = "invisible"
)

var validStatuses = map[PresenceStatus]bool{
	StatusOffline:   true,
	StatusOnline:    true,
	StatusAway:      true,
	StatusBusy:      true,
	StatusInvisible: true,
}

// ParseStatus validates a raw status string coming off the wire.
func ParseStatus(raw string) (PresenceStatus, error) {
	s := PresenceStatus(raw)
	if !validStatuses[s] {
		return "", ErrInvalidStatus
	}
	return s, nil
}
