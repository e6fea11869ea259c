package registry

import (
	"context"
	"time"

	"github.com/Ramsey-B/sortinghat/pkg/auditlog"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

// AddOrganization registers an organization. Its name may not clash with an
// existing organization or alias.
func (s *Service) AddOrganization(ctx context.Context, name string) (*models.Group, error) {
	if err := requireString("name", name); err != nil {
		return nil, err
	}

	var out *models.Group
	err := s.run(ctx, "add_organization", func(ctx context.Context, trxl *auditlog.Log) error {
		if _, err := s.store.Aliases().Get(ctx, name); err == nil {
			return errors.AlreadyExists("organization", name)
		} else if !errors.Is(err, errors.CodeNotFound) {
			return err
		}

		now := s.now()
		org := &models.Group{Name: name, Kind: models.GroupKindOrganization, CreatedAt: now, LastModified: now}
		if err := s.store.Groups().Create(ctx, org); err != nil {
			return err
		}
		out = org
		return trxl.Append(ctx, models.OperationAdd, EntityOrganization, name, groupArgs(org))
	})
	return out, err
}

// DeleteOrganization removes an organization with its domains, aliases,
// teams and enrollments.
func (s *Service) DeleteOrganization(ctx context.Context, name string) (*models.Group, error) {
	if err := requireString("name", name); err != nil {
		return nil, err
	}

	var out *models.Group
	err := s.run(ctx, "delete_organization", func(ctx context.Context, trxl *auditlog.Log) error {
		org, err := s.store.Groups().FindByName(ctx, models.GroupKindOrganization, name, nil)
		if err != nil {
			return err
		}
		out = org
		return s.deleteGroupTree(ctx, trxl, org)
	})
	return out, err
}

// deleteGroupTree removes g and everything hanging off it, children first.
// Individuals losing an enrollment get their last_modified bumped.
func (s *Service) deleteGroupTree(ctx context.Context, trxl *auditlog.Log, g *models.Group) error {
	children, err := s.store.Groups().ListChildren(ctx, g.ID)
	if err != nil {
		return err
	}
	for i := range children {
		if err := s.deleteGroupTree(ctx, trxl, &children[i]); err != nil {
			return err
		}
	}

	now := s.now()
	enrollments, err := s.store.Enrollments().ListByGroup(ctx, g.ID)
	if err != nil {
		return err
	}
	var touched []string
	for _, e := range enrollments {
		if err := s.store.Enrollments().Delete(ctx, e.ID); err != nil {
			return err
		}
		e.Group = g
		if err := trxl.Append(ctx, models.OperationDelete, EntityEnrollment, e.IndividualMK, enrollmentArgs(e.IndividualMK, e)); err != nil {
			return err
		}
		touched = append(touched, e.IndividualMK)
	}
	if err := s.touch(ctx, now, touched...); err != nil {
		return err
	}

	if g.Kind == models.GroupKindOrganization {
		domains, err := s.store.Domains().ListByOrganization(ctx, g.ID)
		if err != nil {
			return err
		}
		for _, d := range domains {
			if err := s.store.Domains().Delete(ctx, d.Domain); err != nil {
				return err
			}
			if err := trxl.Append(ctx, models.OperationDelete, EntityDomain, d.Domain, map[string]any{"domain": d.Domain}); err != nil {
				return err
			}
		}
		aliases, err := s.store.Aliases().ListByOrganization(ctx, g.ID)
		if err != nil {
			return err
		}
		for _, a := range aliases {
			if err := s.store.Aliases().Delete(ctx, a.Alias); err != nil {
				return err
			}
			if err := trxl.Append(ctx, models.OperationDelete, EntityAlias, a.Alias, map[string]any{"alias": a.Alias}); err != nil {
				return err
			}
		}
	}

	if err := s.store.Groups().Delete(ctx, g.ID); err != nil {
		return err
	}
	return trxl.Append(ctx, models.OperationDelete, entityOf(g.Kind), g.Name, groupArgs(g))
}

func entityOf(kind models.GroupKind) string {
	switch kind {
	case models.GroupKindOrganization:
		return EntityOrganization
	case models.GroupKindTeam:
		return EntityTeam
	}
	return EntityGroup
}

func groupArgs(g *models.Group) map[string]any {
	args := map[string]any{"name": g.Name, "id": g.ID}
	if g.ParentID != nil {
		args["parent_id"] = *g.ParentID
	}
	if g.ParentOrgID != nil {
		args["parent_org_id"] = *g.ParentOrgID
	}
	return args
}

// findOrganization resolves name as an organization name, then as an alias.
func (s *Service) findOrganization(ctx context.Context, name string) (*models.Group, error) {
	org, err := s.store.Groups().FindByName(ctx, models.GroupKindOrganization, name, nil)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	alias, err := s.store.Aliases().Get(ctx, name)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, errors.NotFound("organization", name)
		}
		return nil, err
	}
	return s.store.Groups().Get(ctx, alias.OrganizationID)
}

// FindOrganization returns an organization, looked up by name or alias, with
// its domains, aliases and team tree.
func (s *Service) FindOrganization(ctx context.Context, name string) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.FindOrganization")
	defer span.End()

	if err := requireString("name", name); err != nil {
		return nil, err
	}
	org, err := s.findOrganization(ctx, name)
	if err != nil {
		return nil, err
	}
	return org, s.loadOrganization(ctx, org)
}

func (s *Service) loadOrganization(ctx context.Context, org *models.Group) error {
	var err error
	if org.Domains, err = s.store.Domains().ListByOrganization(ctx, org.ID); err != nil {
		return err
	}
	if org.Aliases, err = s.store.Aliases().ListByOrganization(ctx, org.ID); err != nil {
		return err
	}
	org.Teams, err = s.teamTree(ctx, org.ID)
	return err
}

func (s *Service) teamTree(ctx context.Context, parentID int64) ([]models.Group, error) {
	children, err := s.store.Groups().ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	for i := range children {
		if children[i].Teams, err = s.teamTree(ctx, children[i].ID); err != nil {
			return nil, err
		}
	}
	return children, nil
}

// FindDomain returns the domain row for domain.
func (s *Service) FindDomain(ctx context.Context, domain string) (*models.Domain, error) {
	return s.store.Domains().Get(ctx, domain)
}

// GetGroup returns a group by id without its children.
func (s *Service) GetGroup(ctx context.Context, id int64) (*models.Group, error) {
	return s.store.Groups().Get(ctx, id)
}

// ListOrganizations returns organizations whose name contains filter.Term.
func (s *Service) ListOrganizations(ctx context.Context, filter models.OrganizationFilter) ([]models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.ListOrganizations")
	defer span.End()

	if filter.Limit < 0 {
		return nil, errors.InvalidFilter("limit", "must be positive")
	}
	if filter.Offset < 0 {
		return nil, errors.InvalidFilter("offset", "must be positive")
	}
	orgs, err := s.store.Groups().List(ctx, models.GroupKindOrganization, filter)
	if err != nil {
		return nil, err
	}
	for i := range orgs {
		if err := s.loadOrganization(ctx, &orgs[i]); err != nil {
			return nil, err
		}
	}
	return orgs, nil
}

func (s *Service) touchGroup(ctx context.Context, g *models.Group, at time.Time) error {
	g.LastModified = at
	return s.store.Groups().Update(ctx, g)
}

// AddDomain attaches domain to the organization named orgName.
func (s *Service) AddDomain(ctx context.Context, orgName, domain string, isTopDomain bool) (*models.Domain, error) {
	if err := requireString("organization", orgName); err != nil {
		return nil, err
	}
	if err := requireString("domain", domain); err != nil {
		return nil, err
	}

	var out *models.Domain
	err := s.run(ctx, "add_domain", func(ctx context.Context, trxl *auditlog.Log) error {
		org, err := s.findOrganization(ctx, orgName)
		if err != nil {
			return err
		}
		now := s.now()
		d := &models.Domain{
			Domain:         domain,
			IsTopDomain:    isTopDomain,
			OrganizationID: org.ID,
			CreatedAt:      now,
			LastModified:   now,
		}
		if err := s.store.Domains().Create(ctx, d); err != nil {
			return err
		}
		if err := s.touchGroup(ctx, org, now); err != nil {
			return err
		}
		out = d
		return trxl.Append(ctx, models.OperationAdd, EntityDomain, domain, map[string]any{
			"organization": org.Name, "domain": domain, "is_top_domain": isTopDomain,
		})
	})
	return out, err
}

// UpdateDomain changes the top-domain flag of domain.
func (s *Service) UpdateDomain(ctx context.Context, domain string, isTopDomain bool) (*models.Domain, error) {
	if err := requireString("domain", domain); err != nil {
		return nil, err
	}

	var out *models.Domain
	err := s.run(ctx, "update_domain", func(ctx context.Context, trxl *auditlog.Log) error {
		d, err := s.store.Domains().Get(ctx, domain)
		if err != nil {
			return err
		}
		d.IsTopDomain = isTopDomain
		d.LastModified = s.now()
		if err := s.store.Domains().Update(ctx, d); err != nil {
			return err
		}
		out = d
		return trxl.Append(ctx, models.OperationUpdate, EntityDomain, domain, map[string]any{
			"domain": domain, "is_top_domain": isTopDomain,
		})
	})
	return out, err
}

func (s *Service) DeleteDomain(ctx context.Context, domain string) (*models.Domain, error) {
	if err := requireString("domain", domain); err != nil {
		return nil, err
	}

	var out *models.Domain
	err := s.run(ctx, "delete_domain", func(ctx context.Context, trxl *auditlog.Log) error {
		d, err := s.store.Domains().Get(ctx, domain)
		if err != nil {
			return err
		}
		if err := s.store.Domains().Delete(ctx, domain); err != nil {
			return err
		}
		if org, err := s.store.Groups().Get(ctx, d.OrganizationID); err == nil {
			if err := s.touchGroup(ctx, org, s.now()); err != nil {
				return err
			}
		}
		out = d
		return trxl.Append(ctx, models.OperationDelete, EntityDomain, domain, map[string]any{"domain": domain})
	})
	return out, err
}

// MoveDomain reassigns domain to the organization named toOrg.
func (s *Service) MoveDomain(ctx context.Context, domain, toOrg string) (*models.Domain, error) {
	if err := requireString("domain", domain); err != nil {
		return nil, err
	}
	if err := requireString("organization", toOrg); err != nil {
		return nil, err
	}

	var out *models.Domain
	err := s.run(ctx, "move_domain", func(ctx context.Context, trxl *auditlog.Log) error {
		d, err := s.store.Domains().Get(ctx, domain)
		if err != nil {
			return err
		}
		dest, err := s.findOrganization(ctx, toOrg)
		if err != nil {
			return err
		}
		if d.OrganizationID == dest.ID {
			return errors.InvalidValuef("MOVE_SAME_ORGANIZATION_ERROR", "domain %s already belongs to %s", domain, dest.Name)
		}
		src, err := s.store.Groups().Get(ctx, d.OrganizationID)
		if err != nil {
			return err
		}

		now := s.now()
		d.OrganizationID = dest.ID
		d.LastModified = now
		if err := s.store.Domains().Update(ctx, d); err != nil {
			return err
		}
		if err := s.touchGroup(ctx, src, now); err != nil {
			return err
		}
		if err := s.touchGroup(ctx, dest, now); err != nil {
			return err
		}
		out = d
		return trxl.Append(ctx, models.OperationUpdate, EntityDomain, domain, map[string]any{
			"domain": domain, "from_organization": src.Name, "to_organization": dest.Name,
		})
	})
	return out, err
}

// AddAlias registers alias as another name of orgName. Aliases share the
// namespace of organization names.
func (s *Service) AddAlias(ctx context.Context, orgName, alias string) (*models.Alias, error) {
	if err := requireString("organization", orgName); err != nil {
		return nil, err
	}
	if err := requireString("alias", alias); err != nil {
		return nil, err
	}

	var out *models.Alias
	err := s.run(ctx, "add_alias", func(ctx context.Context, trxl *auditlog.Log) error {
		if _, err := s.store.Groups().FindByName(ctx, models.GroupKindOrganization, alias, nil); err == nil {
			return errors.AlreadyExists("organization", alias)
		} else if !errors.Is(err, errors.CodeNotFound) {
			return err
		}
		org, err := s.findOrganization(ctx, orgName)
		if err != nil {
			return err
		}

		now := s.now()
		a := &models.Alias{Alias: alias, OrganizationID: org.ID, CreatedAt: now, LastModified: now}
		if err := s.store.Aliases().Create(ctx, a); err != nil {
			return err
		}
		if err := s.touchGroup(ctx, org, now); err != nil {
			return err
		}
		out = a
		return trxl.Append(ctx, models.OperationAdd, EntityAlias, alias, map[string]any{
			"organization": org.Name, "alias": alias,
		})
	})
	return out, err
}

func (s *Service) DeleteAlias(ctx context.Context, alias string) (*models.Alias, error) {
	if err := requireString("alias", alias); err != nil {
		return nil, err
	}

	var out *models.Alias
	err := s.run(ctx, "delete_alias", func(ctx context.Context, trxl *auditlog.Log) error {
		a, err := s.store.Aliases().Get(ctx, alias)
		if err != nil {
			return err
		}
		if err := s.store.Aliases().Delete(ctx, alias); err != nil {
			return err
		}
		if org, err := s.store.Groups().Get(ctx, a.OrganizationID); err == nil {
			if err := s.touchGroup(ctx, org, s.now()); err != nil {
				return err
			}
		}
		out = a
		return trxl.Append(ctx, models.OperationDelete, EntityAlias, alias, map[string]any{"alias": alias})
	})
	return out, err
}

// findTeam looks a team up inside orgName, or among free-floating teams when
// orgName is empty.
func (s *Service) findTeam(ctx context.Context, name, orgName string) (*models.Group, *models.Group, error) {
	if orgName == "" {
		team, err := s.store.Groups().FindByName(ctx, models.GroupKindTeam, name, nil)
		return team, nil, err
	}
	org, err := s.findOrganization(ctx, orgName)
	if err != nil {
		return nil, nil, err
	}
	team, err := s.store.Groups().FindByName(ctx, models.GroupKindTeam, name, &org.ID)
	return team, org, err
}

// AddTeam creates a team inside orgName, under parentTeam when given. With no
// organization the team floats free.
func (s *Service) AddTeam(ctx context.Context, name, orgName, parentTeam string) (*models.Group, error) {
	if err := requireString("name", name); err != nil {
		return nil, err
	}

	var out *models.Group
	err := s.run(ctx, "add_team", func(ctx context.Context, trxl *auditlog.Log) error {
		now := s.now()
		team := &models.Group{Name: name, Kind: models.GroupKindTeam, CreatedAt: now, LastModified: now}

		var org *models.Group
		if orgName != "" {
			var err error
			if org, err = s.findOrganization(ctx, orgName); err != nil {
				return err
			}
			team.ParentOrgID = &org.ID
			team.ParentID = &org.ID
		}
		if parentTeam != "" {
			parent, _, err := s.findTeam(ctx, parentTeam, orgName)
			if err != nil {
				return err
			}
			team.ParentID = &parent.ID
		}

		if err := s.store.Groups().Create(ctx, team); err != nil {
			return err
		}
		if org != nil {
			if err := s.touchGroup(ctx, org, now); err != nil {
				return err
			}
		}
		out = team
		return trxl.Append(ctx, models.OperationAdd, EntityTeam, name, groupArgs(team))
	})
	return out, err
}

// DeleteTeam removes a team and its subteams.
func (s *Service) DeleteTeam(ctx context.Context, name, orgName string) (*models.Group, error) {
	if err := requireString("name", name); err != nil {
		return nil, err
	}

	var out *models.Group
	err := s.run(ctx, "delete_team", func(ctx context.Context, trxl *auditlog.Log) error {
		team, _, err := s.findTeam(ctx, name, orgName)
		if err != nil {
			return err
		}
		out = team
		return s.deleteGroupTree(ctx, trxl, team)
	})
	return out, err
}

// MoveTeam reattaches a team, with its subteams, to the organization toOrg,
// under toParent when given.
func (s *Service) MoveTeam(ctx context.Context, name, orgName, toOrg, toParent string) (*models.Group, error) {
	if err := requireString("name", name); err != nil {
		return nil, err
	}
	if err := requireString("organization", toOrg); err != nil {
		return nil, err
	}

	var out *models.Group
	err := s.run(ctx, "move_team", func(ctx context.Context, trxl *auditlog.Log) error {
		team, src, err := s.findTeam(ctx, name, orgName)
		if err != nil {
			return err
		}
		dest, err := s.findOrganization(ctx, toOrg)
		if err != nil {
			return err
		}

		parentID := dest.ID
		if toParent != "" {
			parent, err := s.store.Groups().FindByName(ctx, models.GroupKindTeam, toParent, &dest.ID)
			if err != nil {
				return err
			}
			if parent.ID == team.ID || s.isDescendant(ctx, parent, team.ID) {
				return errors.InvalidValuef("MOVE_TEAM_CYCLE_ERROR", "team %s cannot be moved under itself", name)
			}
			parentID = parent.ID
		}
		if team.ParentID != nil && *team.ParentID == parentID {
			return errors.InvalidValuef("MOVE_SAME_PARENT_ERROR", "team %s already belongs to %s", name, dest.Name)
		}

		now := s.now()
		team.ParentID = &parentID
		team.ParentOrgID = &dest.ID
		team.LastModified = now
		if err := s.store.Groups().Update(ctx, team); err != nil {
			return err
		}
		if err := s.reassignSubteams(ctx, team.ID, dest.ID, now); err != nil {
			return err
		}
		if src != nil && src.ID != dest.ID {
			if err := s.touchGroup(ctx, src, now); err != nil {
				return err
			}
		}
		if err := s.touchGroup(ctx, dest, now); err != nil {
			return err
		}
		out = team
		return trxl.Append(ctx, models.OperationUpdate, EntityTeam, name, groupArgs(team))
	})
	return out, err
}

func (s *Service) isDescendant(ctx context.Context, g *models.Group, ancestorID int64) bool {
	for g.ParentID != nil {
		if *g.ParentID == ancestorID {
			return true
		}
		parent, err := s.store.Groups().Get(ctx, *g.ParentID)
		if err != nil || parent.Kind != models.GroupKindTeam {
			return false
		}
		g = parent
	}
	return false
}

func (s *Service) reassignSubteams(ctx context.Context, parentID, orgID int64, at time.Time) error {
	children, err := s.store.Groups().ListChildren(ctx, parentID)
	if err != nil {
		return err
	}
	for i := range children {
		child := &children[i]
		child.ParentOrgID = &orgID
		child.LastModified = at
		if err := s.store.Groups().Update(ctx, child); err != nil {
			return err
		}
		if err := s.reassignSubteams(ctx, child.ID, orgID, at); err != nil {
			return err
		}
	}
	return nil
}

// ListTeams returns the team tree of orgName. With parentTeam only that
// subtree is returned.
func (s *Service) ListTeams(ctx context.Context, orgName, parentTeam string) ([]models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.ListTeams")
	defer span.End()

	if err := requireString("organization", orgName); err != nil {
		return nil, err
	}
	org, err := s.findOrganization(ctx, orgName)
	if err != nil {
		return nil, err
	}
	root := org.ID
	if parentTeam != "" {
		parent, err := s.store.Groups().FindByName(ctx, models.GroupKindTeam, parentTeam, &org.ID)
		if err != nil {
			return nil, err
		}
		root = parent.ID
	}
	return s.teamTree(ctx, root)
}

// AddGroup creates a standalone group.
func (s *Service) AddGroup(ctx context.Context, name string) (*models.Group, error) {
	if err := requireString("name", name); err != nil {
		return nil, err
	}

	var out *models.Group
	err := s.run(ctx, "add_group", func(ctx context.Context, trxl *auditlog.Log) error {
		now := s.now()
		g := &models.Group{Name: name, Kind: models.GroupKindGroup, CreatedAt: now, LastModified: now}
		if err := s.store.Groups().Create(ctx, g); err != nil {
			return err
		}
		out = g
		return trxl.Append(ctx, models.OperationAdd, EntityGroup, name, groupArgs(g))
	})
	return out, err
}

func (s *Service) DeleteGroup(ctx context.Context, name string) (*models.Group, error) {
	if err := requireString("name", name); err != nil {
		return nil, err
	}

	var out *models.Group
	err := s.run(ctx, "delete_group", func(ctx context.Context, trxl *auditlog.Log) error {
		g, err := s.store.Groups().FindByName(ctx, models.GroupKindGroup, name, nil)
		if err != nil {
			return err
		}
		out = g
		return s.deleteGroupTree(ctx, trxl, g)
	})
	return out, err
}
