// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxDisplayNameLen = 36

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type AccountID string

// Participant is the per-session state of one member: who they are and
// what the room currently knows about them. No transport or lifecycle
// logic here; the registry owns mutation.
type Participant struct {
	Account     AccountID `json:"account_id"`
	DisplayName string    `json:"display_name"`
	Position    Position  `json:"position"`
	Muted       bool      `json:"muted"`
}

// NewParticipant avoids raw literals in adapters and keeps construction
// obvious. Position defaults to the origin, muted to false.
func NewParticipant(account AccountID, displayName string) (*Participant, error) {
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	return &Participant{Account: account, DisplayName: displayName}, nil
}
