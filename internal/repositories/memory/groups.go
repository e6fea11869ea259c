package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
)

type enrollments struct{ s *Store }

func (r enrollments) Get(ctx context.Context, id int64) (*models.Enrollment, error) {
	var out *models.Enrollment
	err := r.s.read(ctx, func(st *state) error {
		e, ok := st.enrollments[id]
		if !ok {
			return errors.NotFound("enrollment", fmt.Sprint(id))
		}
		out = &e
		return nil
	})
	return out, err
}

func (r enrollments) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return r.s.write(ctx, func(st *state) error {
		for _, e := range st.enrollments {
			if e.IndividualMK == enrollment.IndividualMK && e.GroupID == enrollment.GroupID &&
				e.SamePeriod(enrollment.Start, enrollment.End) {
				return errors.AlreadyExists("enrollment", fmt.Sprintf("%s-%d-%s-%s", e.IndividualMK, e.GroupID,
					e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339)))
			}
		}
		if _, ok := st.groups[enrollment.GroupID]; !ok {
			return errors.NotFound("group", fmt.Sprint(enrollment.GroupID))
		}
		enrollment.ID = st.nextID()
		stored := *enrollment
		stored.Group = nil
		st.enrollments[stored.ID] = stored
		return nil
	})
}

func (r enrollments) Delete(ctx context.Context, id int64) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.enrollments[id]; !ok {
			return errors.NotFound("enrollment", fmt.Sprint(id))
		}
		delete(st.enrollments, id)
		return nil
	})
}

func (r enrollments) Reparent(ctx context.Context, id int64, mk string, at time.Time) error {
	return r.s.write(ctx, func(st *state) error {
		e, ok := st.enrollments[id]
		if !ok {
			return errors.NotFound("enrollment", fmt.Sprint(id))
		}
		e.IndividualMK = mk
		e.LastModified = at
		st.enrollments[id] = e
		return nil
	})
}

func (r enrollments) list(ctx context.Context, keep func(models.Enrollment) bool) ([]models.Enrollment, error) {
	var out []models.Enrollment
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range st.enrollments {
			if !keep(e) {
				continue
			}
			if g, ok := st.groups[e.GroupID]; ok {
				e.Group = &g
			}
			out = append(out, e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		if !out[i].End.Equal(out[j].End) {
			return out[i].End.Before(out[j].End)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r enrollments) ListByIndividual(ctx context.Context, mk string) ([]models.Enrollment, error) {
	return r.list(ctx, func(e models.Enrollment) bool { return e.IndividualMK == mk })
}

func (r enrollments) ListByIndividualAndGroup(ctx context.Context, mk string, groupID int64) ([]models.Enrollment, error) {
	return r.list(ctx, func(e models.Enrollment) bool { return e.IndividualMK == mk && e.GroupID == groupID })
}

func (r enrollments) ListByGroup(ctx context.Context, groupID int64) ([]models.Enrollment, error) {
	return r.list(ctx, func(e models.Enrollment) bool { return e.GroupID == groupID })
}

type groups struct{ s *Store }

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r groups) Get(ctx context.Context, id int64) (*models.Group, error) {
	var out *models.Group
	err := r.s.read(ctx, func(st *state) error {
		g, ok := st.groups[id]
		if !ok {
			return errors.NotFound("group", fmt.Sprint(id))
		}
		out = &g
		return nil
	})
	return out, err
}

func (r groups) FindByName(ctx context.Context, kind models.GroupKind, name string, parentOrgID *int64) (*models.Group, error) {
	var out *models.Group
	err := r.s.read(ctx, func(st *state) error {
		for _, g := range st.groups {
			if g.Kind != kind || g.Name != name {
				continue
			}
			if kind == models.GroupKindTeam && !sameParent(g.ParentOrgID, parentOrgID) {
				continue
			}
			out = &g
			return nil
		}
		return errors.NotFound(string(kind), name)
	})
	return out, err
}

func (r groups) conflict(st *state, g *models.Group) bool {
	for _, other := range st.groups {
		if other.ID != g.ID && other.Kind == g.Kind && other.Name == g.Name && sameParent(other.ParentOrgID, g.ParentOrgID) {
			return true
		}
	}
	return false
}

func (r groups) Create(ctx context.Context, group *models.Group) error {
	return r.s.write(ctx, func(st *state) error {
		if r.conflict(st, group) {
			return errors.AlreadyExists(string(group.Kind), group.Name)
		}
		group.ID = st.nextID()
		stored := *group
		stored.Domains, stored.Aliases, stored.Teams = nil, nil, nil
		st.groups[stored.ID] = stored
		return nil
	})
}

func (r groups) Update(ctx context.Context, group *models.Group) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.groups[group.ID]; !ok {
			return errors.NotFound(string(group.Kind), group.Name)
		}
		if r.conflict(st, group) {
			return errors.AlreadyExists(string(group.Kind), group.Name)
		}
		stored := *group
		stored.Domains, stored.Aliases, stored.Teams = nil, nil, nil
		st.groups[stored.ID] = stored
		return nil
	})
}

func (r groups) Delete(ctx context.Context, id int64) error {
	return r.s.write(ctx, func(st *state) error {
		g, ok := st.groups[id]
		if !ok {
			return errors.NotFound("group", fmt.Sprint(id))
		}
		for _, other := range st.groups {
			if other.ParentID != nil && *other.ParentID == id {
				return errors.InvalidValuef("GROUP_HAS_CHILDREN_ERROR", "%s %s still has teams", g.Kind, g.Name)
			}
		}
		delete(st.groups, id)
		for key, d := range st.domains {
			if d.OrganizationID == id {
				delete(st.domains, key)
			}
		}
		for key, a := range st.aliases {
			if a.OrganizationID == id {
				delete(st.aliases, key)
			}
		}
		for key, e := range st.enrollments {
			if e.GroupID == id {
				delete(st.enrollments, key)
			}
		}
		return nil
	})
}

func (r groups) listWhere(ctx context.Context, keep func(models.Group) bool) ([]models.Group, error) {
	var out []models.Group
	err := r.s.read(ctx, func(st *state) error {
		for _, g := range st.groups {
			if keep(g) {
				out = append(out, g)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r groups) ListChildren(ctx context.Context, parentID int64) ([]models.Group, error) {
	return r.listWhere(ctx, func(g models.Group) bool { return g.ParentID != nil && *g.ParentID == parentID })
}

func (r groups) ListByParentOrg(ctx context.Context, orgID int64) ([]models.Group, error) {
	return r.listWhere(ctx, func(g models.Group) bool { return g.ParentOrgID != nil && *g.ParentOrgID == orgID })
}

func (r groups) List(ctx context.Context, kind models.GroupKind, filter models.OrganizationFilter) ([]models.Group, error) {
	term := strings.ToLower(filter.Term)
	out, err := r.listWhere(ctx, func(g models.Group) bool {
		return g.Kind == kind && (term == "" || strings.Contains(strings.ToLower(g.Name), term))
	})
	if err != nil {
		return nil, err
	}
	return paginate(out, filter.Offset, filter.Limit), nil
}

type domains struct{ s *Store }

func (r domains) Get(ctx context.Context, domain string) (*models.Domain, error) {
	var out *models.Domain
	err := r.s.read(ctx, func(st *state) error {
		d, ok := st.domains[domain]
		if !ok {
			return errors.NotFound("domain", domain)
		}
		out = &d
		return nil
	})
	return out, err
}

func (r domains) Create(ctx context.Context, domain *models.Domain) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.domains[domain.Domain]; ok {
			return errors.AlreadyExists("domain", domain.Domain)
		}
		domain.ID = st.nextID()
		st.domains[domain.Domain] = *domain
		return nil
	})
}

func (r domains) Update(ctx context.Context, domain *models.Domain) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.domains[domain.Domain]; !ok {
			return errors.NotFound("domain", domain.Domain)
		}
		st.domains[domain.Domain] = *domain
		return nil
	})
}

func (r domains) Delete(ctx context.Context, domain string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.domains[domain]; !ok {
			return errors.NotFound("domain", domain)
		}
		delete(st.domains, domain)
		return nil
	})
}

func (r domains) ListByOrganization(ctx context.Context, orgID int64) ([]models.Domain, error) {
	var out []models.Domain
	err := r.s.read(ctx, func(st *state) error {
		for _, d := range st.domains {
			if d.OrganizationID == orgID {
				out = append(out, d)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, err
}

type aliases struct{ s *Store }

func (r aliases) Get(ctx context.Context, alias string) (*models.Alias, error) {
	var out *models.Alias
	err := r.s.read(ctx, func(st *state) error {
		a, ok := st.aliases[alias]
		if !ok {
			return errors.NotFound("alias", alias)
		}
		out = &a
		return nil
	})
	return out, err
}

func (r aliases) Create(ctx context.Context, alias *models.Alias) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.aliases[alias.Alias]; ok {
			return errors.AlreadyExists("alias", alias.Alias)
		}
		alias.ID = st.nextID()
		st.aliases[alias.Alias] = *alias
		return nil
	})
}

func (r aliases) Delete(ctx context.Context, alias string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.aliases[alias]; !ok {
			return errors.NotFound("alias", alias)
		}
		delete(st.aliases, alias)
		return nil
	})
}

func (r aliases) ListByOrganization(ctx context.Context, orgID int64) ([]models.Alias, error) {
	var out []models.Alias
	err := r.s.read(ctx, func(st *state) error {
		for _, a := range st.aliases {
			if a.OrganizationID == orgID {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, err
}
