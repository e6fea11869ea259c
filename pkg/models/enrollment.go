package models

import "time"

// Enrollment is the closed interval [Start, End] during which an individual
// belongs to a group.
type Enrollment struct {
	ID           int64     `json:"id" db:"id"`
	IndividualMK string    `json:"individual_mk" db:"individual_mk"`
	GroupID      int64     `json:"group_id" db:"group_id"`
	Start        time.Time `json:"start" db:"start_date"`
	End          time.Time `json:"end" db:"end_date"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastModified time.Time `json:"last_modified" db:"last_modified"`

	Group *Group `json:"group,omitempty" db:"-"`
}

// SamePeriod reports whether e covers exactly [start, end].
func (e Enrollment) SamePeriod(start, end time.Time) bool {
	return e.Start.Equal(start) && e.End.Equal(end)
}
