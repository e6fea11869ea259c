package models

import "time"

// GroupKind discriminates the variants stored in the groups table.
type GroupKind string

const (
	GroupKindOrganization GroupKind = "organization"
	GroupKindTeam         GroupKind = "team"
	GroupKindGroup        GroupKind = "group"
)

func (k GroupKind) Valid() bool {
	switch k {
	case GroupKindOrganization, GroupKindTeam, GroupKindGroup:
		return true
	}
	return false
}

// Group is an enrollment target. Teams hang off ParentID inside the tree of
// ParentOrgID; organizations and standalone groups have neither.
type Group struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Kind         GroupKind `json:"kind" db:"kind"`
	ParentID     *int64    `json:"parent_id,omitempty" db:"parent_id"`
	ParentOrgID  *int64    `json:"parent_org_id,omitempty" db:"parent_org_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	LastModified time.Time `json:"last_modified" db:"last_modified"`

	Domains []Domain `json:"domains,omitempty" db:"-"`
	Aliases []Alias  `json:"aliases,omitempty" db:"-"`
	Teams   []Group  `json:"teams,omitempty" db:"-"`
}

type Domain struct {
	ID             int64     `json:"id" db:"id"`
	Domain         string    `json:"domain" db:"domain"`
	IsTopDomain    bool      `json:"is_top_domain" db:"is_top_domain"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	LastModified   time.Time `json:"last_modified" db:"last_modified"`
}

type Alias struct {
	ID             int64     `json:"id" db:"id"`
	Alias          string    `json:"alias" db:"alias"`
	OrganizationID int64     `json:"organization_id" db:"organization_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	LastModified   time.Time `json:"last_modified" db:"last_modified"`
}

// GroupRef names an enrollment target by its name, optionally scoped to a
// parent organization for teams.
type GroupRef struct {
	Name      string `json:"group" validate:"required"`
	ParentOrg string `json:"parent_org,omitempty"`
}

type OrganizationFilter struct {
	Term   string
	Limit  int
	Offset int
}

type MatchingExclusion struct {
	ID        int64     `json:"id" db:"id"`
	Term      string    `json:"term" db:"term"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
