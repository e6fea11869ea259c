package models

import "time"

// Individual is the canonical person. It owns exactly one Profile and any
// number of identities and enrollments.
type Individual struct {
	MK           string    `json:"mk" db:"mk"`
	IsLocked     bool      `json:"is_locked" db:"is_locked"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastModified time.Time `json:"last_modified" db:"last_modified"`

	Profile     *Profile     `json:"profile,omitempty" db:"-"`
	Identities  []Identity   `json:"identities,omitempty" db:"-"`
	Enrollments []Enrollment `json:"enrollments,omitempty" db:"-"`
}

// Profile holds the editable attributes of an individual.
type Profile struct {
	MK          string  `json:"-" db:"individual_mk"`
	Name        *string `json:"name" db:"name"`
	Email       *string `json:"email" db:"email"`
	IsBot       bool    `json:"is_bot" db:"is_bot"`
	Gender      *string `json:"gender" db:"gender"`
	GenderAcc   *int    `json:"gender_acc" db:"gender_acc"`
	CountryCode *string `json:"country_code" db:"country_code"`

	Country *Country `json:"country,omitempty" db:"-"`
}

// Identity is one (source, email, name, username) observation.
type Identity struct {
	UUID         string    `json:"uuid" db:"uuid"`
	Source       string    `json:"source" db:"source"`
	Email        *string   `json:"email" db:"email"`
	Name         *string   `json:"name" db:"name"`
	Username     *string   `json:"username" db:"username"`
	IndividualMK string    `json:"individual_mk" db:"individual_mk"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastModified time.Time `json:"last_modified" db:"last_modified"`
}

// IdentityData is the observed tuple a fingerprint is computed from.
type IdentityData struct {
	Source   string  `json:"source" validate:"required"`
	Email    *string `json:"email,omitempty"`
	Name     *string `json:"name,omitempty"`
	Username *string `json:"username,omitempty"`
}

func (i Identity) Data() IdentityData {
	return IdentityData{Source: i.Source, Email: i.Email, Name: i.Name, Username: i.Username}
}

// ProfileUpdate lists the profile fields to change. Nil fields are left alone
// unless named in Clear.
type ProfileUpdate struct {
	Name        *string  `json:"name,omitempty"`
	Email       *string  `json:"email,omitempty"`
	IsBot       *bool    `json:"is_bot,omitempty"`
	Gender      *string  `json:"gender,omitempty"`
	GenderAcc   *int     `json:"gender_acc,omitempty"`
	CountryCode *string  `json:"country_code,omitempty"`
	Clear       []string `json:"clear,omitempty"`
}

// Clears reports whether field was explicitly set to null.
func (u ProfileUpdate) Clears(field string) bool {
	for _, f := range u.Clear {
		if f == field {
			return true
		}
	}
	return false
}

// IndividualFilter narrows list queries.
type IndividualFilter struct {
	Term     string   `json:"term,omitempty"`
	Sources  []string `json:"sources,omitempty"`
	IsLocked *bool    `json:"is_locked,omitempty"`
	MKs      []string `json:"mks,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

// IdentityFilter narrows identity scans.
type IdentityFilter struct {
	Sources       []string
	IndividualMKs []string
	UUIDs         []string
}

type Country struct {
	Code   string `json:"code" db:"code"`
	Alpha3 string `json:"alpha3" db:"alpha3"`
	Name   string `json:"name" db:"name"`
}
