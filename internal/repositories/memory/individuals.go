package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
)

type individuals struct{ s *Store }

func (r individuals) Get(ctx context.Context, mk string) (*models.Individual, error) {
	var out *models.Individual
	err := r.s.read(ctx, func(st *state) error {
		ind, ok := st.individuals[mk]
		if !ok {
			return errors.NotFound("individual", mk)
		}
		out = &ind
		return nil
	})
	return out, err
}

func (r individuals) Create(ctx context.Context, individual *models.Individual) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.individuals[individual.MK]; ok {
			return errors.AlreadyExists("individual", individual.MK)
		}
		stored := *individual
		stored.Profile, stored.Identities, stored.Enrollments = nil, nil, nil
		st.individuals[individual.MK] = stored
		return nil
	})
}

func (r individuals) Delete(ctx context.Context, mk string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.individuals[mk]; !ok {
			return errors.NotFound("individual", mk)
		}
		delete(st.individuals, mk)
		delete(st.profiles, mk)
		for id, identity := range st.identities {
			if identity.IndividualMK == mk {
				delete(st.identities, id)
			}
		}
		for id, enrollment := range st.enrollments {
			if enrollment.IndividualMK == mk {
				delete(st.enrollments, id)
			}
		}
		return nil
	})
}

func (r individuals) Touch(ctx context.Context, mk string, at time.Time) error {
	return r.s.write(ctx, func(st *state) error {
		ind, ok := st.individuals[mk]
		if !ok {
			return errors.NotFound("individual", mk)
		}
		ind.LastModified = at
		st.individuals[mk] = ind
		return nil
	})
}

func (r individuals) SetLocked(ctx context.Context, mk string, locked bool, at time.Time) error {
	return r.s.write(ctx, func(st *state) error {
		ind, ok := st.individuals[mk]
		if !ok {
			return errors.NotFound("individual", mk)
		}
		ind.IsLocked = locked
		ind.LastModified = at
		st.individuals[mk] = ind
		return nil
	})
}

func (r individuals) List(ctx context.Context, filter models.IndividualFilter) ([]models.Individual, error) {
	var out []models.Individual
	err := r.s.read(ctx, func(st *state) error {
		mks := toSet(filter.MKs)
		sources := toSet(filter.Sources)
		term := strings.ToLower(filter.Term)

		for mk, ind := range st.individuals {
			if len(mks) > 0 && !mks[mk] {
				continue
			}
			if filter.IsLocked != nil && ind.IsLocked != *filter.IsLocked {
				continue
			}
			if len(sources) > 0 && !hasSource(st, mk, sources) {
				continue
			}
			if term != "" && !matchesTerm(st, ind, term) {
				continue
			}
			out = append(out, ind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].MK < out[j].MK })
	return paginate(out, filter.Offset, filter.Limit), nil
}

func hasSource(st *state, mk string, sources map[string]bool) bool {
	for _, identity := range st.identities {
		if identity.IndividualMK == mk && sources[identity.Source] {
			return true
		}
	}
	return false
}

func matchesTerm(st *state, ind models.Individual, term string) bool {
	contains := func(v *string) bool {
		return v != nil && strings.Contains(strings.ToLower(*v), term)
	}
	if strings.Contains(ind.MK, term) {
		return true
	}
	if p, ok := st.profiles[ind.MK]; ok && (contains(p.Name) || contains(p.Email)) {
		return true
	}
	for _, identity := range st.identities {
		if identity.IndividualMK != ind.MK {
			continue
		}
		if contains(identity.Name) || contains(identity.Email) || contains(identity.Username) {
			return true
		}
	}
	return false
}

type profiles struct{ s *Store }

func (r profiles) Get(ctx context.Context, mk string) (*models.Profile, error) {
	var out *models.Profile
	err := r.s.read(ctx, func(st *state) error {
		p, ok := st.profiles[mk]
		if !ok {
			return errors.NotFound("profile", mk)
		}
		if p.CountryCode != nil {
			if c, ok := st.countries[*p.CountryCode]; ok {
				p.Country = &c
			}
		}
		out = &p
		return nil
	})
	return out, err
}

func (r profiles) Create(ctx context.Context, profile *models.Profile) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.profiles[profile.MK]; ok {
			return errors.AlreadyExists("profile", profile.MK)
		}
		stored := *profile
		stored.Country = nil
		st.profiles[profile.MK] = stored
		return nil
	})
}

func (r profiles) Update(ctx context.Context, profile *models.Profile) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.profiles[profile.MK]; !ok {
			return errors.NotFound("profile", profile.MK)
		}
		if profile.CountryCode != nil {
			if _, ok := st.countries[*profile.CountryCode]; !ok {
				return errors.NotFound("country", *profile.CountryCode)
			}
		}
		stored := *profile
		stored.Country = nil
		st.profiles[profile.MK] = stored
		return nil
	})
}

func (r profiles) Delete(ctx context.Context, mk string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.profiles[mk]; !ok {
			return errors.NotFound("profile", mk)
		}
		delete(st.profiles, mk)
		return nil
	})
}

type identities struct{ s *Store }

func (r identities) Get(ctx context.Context, uuid string) (*models.Identity, error) {
	var out *models.Identity
	err := r.s.read(ctx, func(st *state) error {
		identity, ok := st.identities[uuid]
		if !ok {
			return errors.NotFound("identity", uuid)
		}
		out = &identity
		return nil
	})
	return out, err
}

func (r identities) Create(ctx context.Context, identity *models.Identity) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.identities[identity.UUID]; ok {
			return errors.AlreadyExists("identity", identity.UUID)
		}
		if _, ok := st.individuals[identity.IndividualMK]; !ok {
			return errors.NotFound("individual", identity.IndividualMK)
		}
		st.identities[identity.UUID] = *identity
		return nil
	})
}

func (r identities) Delete(ctx context.Context, uuid string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.identities[uuid]; !ok {
			return errors.NotFound("identity", uuid)
		}
		delete(st.identities, uuid)
		return nil
	})
}

func (r identities) Reparent(ctx context.Context, uuid, mk string, at time.Time) error {
	return r.s.write(ctx, func(st *state) error {
		identity, ok := st.identities[uuid]
		if !ok {
			return errors.NotFound("identity", uuid)
		}
		if _, ok := st.individuals[mk]; !ok {
			return errors.NotFound("individual", mk)
		}
		identity.IndividualMK = mk
		identity.LastModified = at
		st.identities[uuid] = identity
		return nil
	})
}

func (r identities) ListByIndividual(ctx context.Context, mk string) ([]models.Identity, error) {
	return r.List(ctx, models.IdentityFilter{IndividualMKs: []string{mk}})
}

func (r identities) List(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, error) {
	var out []models.Identity
	err := r.s.read(ctx, func(st *state) error {
		sources := toSet(filter.Sources)
		mks := toSet(filter.IndividualMKs)
		uuids := toSet(filter.UUIDs)
		for _, identity := range st.identities {
			if len(sources) > 0 && !sources[identity.Source] {
				continue
			}
			if len(mks) > 0 && !mks[identity.IndividualMK] {
				continue
			}
			if len(uuids) > 0 && !uuids[identity.UUID] {
				continue
			}
			out = append(out, identity)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, err
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
