package models

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Participant is a person in the gift exchange. TargetID references the
// participant this one must gift; it is nil until the assignment engine
// commits a draw and never changes afterwards.
type Participant struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	PIN       string     `db:"pin" json:"pin"`
	TargetID  *uuid.UUID `db:"target_id" json:"target_id,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// HasAssignment reports whether the participant has already drawn a target.
func (p *Participant) HasAssignment() bool {
	return p.TargetID != nil
}

// AdminParticipantView is the admin dashboard projection: the participant
// annotated with assignment status, the target's display name and the
// resolved exclusion list.
type AdminParticipantView struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	PIN           string      `json:"pin"`
	HasAssignment bool        `json:"has_assignment"`
	TargetName    *string     `json:"target_name,omitempty"`
	ExcludedIDs   []uuid.UUID `json:"excluded_ids"`
	ExcludedNames []string    `json:"excluded_names"`
}

// CreateParticipantRequest carries the fields for registering a participant.
type CreateParticipantRequest struct {
	Name        string
	PIN         string
	ExcludedIDs []uuid.UUID
}

// UpdateParticipantRequest carries a partial update; nil fields are left
// untouched. A non-nil ExcludedIDs replaces the whole exclusion set, so an
// empty slice clears it.
type UpdateParticipantRequest struct {
	Name        *string
	PIN         *string
	ExcludedIDs *[]uuid.UUID
}

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// ValidPIN reports whether s is a well-formed 4-digit PIN.
func ValidPIN(s string) bool {
	return pinPattern.MatchString(s)
}
