package registry

import (
	"context"

	"github.com/Ramsey-B/sortinghat/pkg/auditlog"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/fingerprint"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

// AddIndividual creates an individual, with an empty profile, whose mk is the
// fingerprint of data.
func (s *Service) AddIndividual(ctx context.Context, data models.IdentityData) (*models.Individual, error) {
	mk, err := fingerprint.Generate(data)
	if err != nil {
		return nil, err
	}

	var out *models.Individual
	err = s.run(ctx, "add_individual", func(ctx context.Context, trxl *auditlog.Log) error {
		if err := s.createIndividual(ctx, trxl, mk); err != nil {
			return err
		}
		out, err = s.loadIndividual(ctx, mk)
		return err
	})
	return out, err
}

func (s *Service) createIndividual(ctx context.Context, trxl *auditlog.Log, mk string) error {
	now := s.now()
	ind := &models.Individual{MK: mk, CreatedAt: now, LastModified: now}
	if err := s.store.Individuals().Create(ctx, ind); err != nil {
		return err
	}
	if err := s.store.Profiles().Create(ctx, &models.Profile{MK: mk}); err != nil {
		return err
	}
	return trxl.Append(ctx, models.OperationAdd, EntityIndividual, mk, map[string]any{"mk": mk})
}

// AddIdentity registers a new identity. Without mk a new individual keyed by
// the identity uuid is created to own it; otherwise it is attached to mk.
func (s *Service) AddIdentity(ctx context.Context, data models.IdentityData, mk *string) (*models.Identity, error) {
	if mk != nil {
		if err := requireString("mk", *mk); err != nil {
			return nil, err
		}
	}
	uuid, err := fingerprint.Generate(data)
	if err != nil {
		return nil, err
	}

	var out *models.Identity
	err = s.run(ctx, "add_identity", func(ctx context.Context, trxl *auditlog.Log) error {
		if _, err := s.store.Identities().Get(ctx, uuid); err == nil {
			return errors.AlreadyExists("identity", uuid)
		} else if !errors.Is(err, errors.CodeNotFound) {
			return err
		}

		owner := uuid
		if mk != nil {
			owner = *mk
			if _, err := s.unlocked(ctx, owner); err != nil {
				return err
			}
		} else if err := s.createIndividual(ctx, trxl, owner); err != nil {
			return err
		}

		now := s.now()
		identity := &models.Identity{
			UUID:         uuid,
			Source:       data.Source,
			Email:        data.Email,
			Name:         data.Name,
			Username:     data.Username,
			IndividualMK: owner,
			CreatedAt:    now,
			LastModified: now,
		}
		if err := s.store.Identities().Create(ctx, identity); err != nil {
			return err
		}
		if err := s.touch(ctx, now, owner); err != nil {
			return err
		}

		out = identity
		return trxl.Append(ctx, models.OperationAdd, EntityIdentity, uuid, map[string]any{
			"uuid":     uuid,
			"source":   data.Source,
			"email":    data.Email,
			"name":     data.Name,
			"username": data.Username,
			"mk":       owner,
		})
	})
	return out, err
}

// DeleteIndividual removes an individual with its profile, identities and
// enrollments. The deleted individual is returned.
func (s *Service) DeleteIndividual(ctx context.Context, mk string) (*models.Individual, error) {
	if err := requireString("mk", mk); err != nil {
		return nil, err
	}

	var out *models.Individual
	err := s.run(ctx, "delete_individual", func(ctx context.Context, trxl *auditlog.Log) error {
		if _, err := s.unlocked(ctx, mk); err != nil {
			return err
		}
		var err error
		if out, err = s.loadIndividual(ctx, mk); err != nil {
			return err
		}
		return s.deleteIndividual(ctx, trxl, out)
	})
	return out, err
}

func (s *Service) deleteIndividual(ctx context.Context, trxl *auditlog.Log, ind *models.Individual) error {
	for _, e := range ind.Enrollments {
		if err := s.store.Enrollments().Delete(ctx, e.ID); err != nil {
			return err
		}
		if err := trxl.Append(ctx, models.OperationDelete, EntityEnrollment, ind.MK, enrollmentArgs(ind.MK, e)); err != nil {
			return err
		}
	}
	for _, identity := range ind.Identities {
		if err := s.store.Identities().Delete(ctx, identity.UUID); err != nil {
			return err
		}
		if err := trxl.Append(ctx, models.OperationDelete, EntityIdentity, identity.UUID, map[string]any{"uuid": identity.UUID}); err != nil {
			return err
		}
	}
	if err := s.store.Profiles().Delete(ctx, ind.MK); err != nil && !errors.Is(err, errors.CodeNotFound) {
		return err
	}
	if err := s.store.Individuals().Delete(ctx, ind.MK); err != nil {
		return err
	}
	return trxl.Append(ctx, models.OperationDelete, EntityIndividual, ind.MK, map[string]any{"mk": ind.MK})
}

// DeleteIdentity removes an identity. Removing the identity whose uuid is its
// individual's mk removes the whole individual, in which case nil is
// returned; otherwise the updated owner is returned.
func (s *Service) DeleteIdentity(ctx context.Context, uuid string) (*models.Individual, error) {
	if err := requireString("uuid", uuid); err != nil {
		return nil, err
	}

	var out *models.Individual
	err := s.run(ctx, "delete_identity", func(ctx context.Context, trxl *auditlog.Log) error {
		identity, err := s.store.Identities().Get(ctx, uuid)
		if err != nil {
			return err
		}
		if _, err := s.unlocked(ctx, identity.IndividualMK); err != nil {
			return err
		}

		if identity.UUID == identity.IndividualMK {
			ind, err := s.loadIndividual(ctx, identity.IndividualMK)
			if err != nil {
				return err
			}
			return s.deleteIndividual(ctx, trxl, ind)
		}

		if err := s.store.Identities().Delete(ctx, uuid); err != nil {
			return err
		}
		if err := s.touch(ctx, s.now(), identity.IndividualMK); err != nil {
			return err
		}
		if err := trxl.Append(ctx, models.OperationDelete, EntityIdentity, uuid, map[string]any{"uuid": uuid}); err != nil {
			return err
		}
		out, err = s.loadIndividual(ctx, identity.IndividualMK)
		return err
	})
	return out, err
}

// LockIndividual makes an individual and its children read-only.
func (s *Service) LockIndividual(ctx context.Context, mk string) (*models.Individual, error) {
	return s.setLocked(ctx, "lock", mk, true)
}

func (s *Service) UnlockIndividual(ctx context.Context, mk string) (*models.Individual, error) {
	return s.setLocked(ctx, "unlock", mk, false)
}

func (s *Service) setLocked(ctx context.Context, name, mk string, locked bool) (*models.Individual, error) {
	if err := requireString("mk", mk); err != nil {
		return nil, err
	}

	var out *models.Individual
	err := s.run(ctx, name, func(ctx context.Context, trxl *auditlog.Log) error {
		if err := s.store.Individuals().SetLocked(ctx, mk, locked, s.now()); err != nil {
			return err
		}
		if err := trxl.Append(ctx, models.OperationUpdate, EntityIndividual, mk, map[string]any{"mk": mk, "is_locked": locked}); err != nil {
			return err
		}
		var err error
		out, err = s.loadIndividual(ctx, mk)
		return err
	})
	return out, err
}

// UpdateProfile edits the profile of mk.
func (s *Service) UpdateProfile(ctx context.Context, mk string, update models.ProfileUpdate) (*models.Individual, error) {
	if err := requireString("mk", mk); err != nil {
		return nil, err
	}
	if err := validateProfileUpdate(update); err != nil {
		return nil, err
	}

	var out *models.Individual
	err := s.run(ctx, "update_profile", func(ctx context.Context, trxl *auditlog.Log) error {
		if _, err := s.unlocked(ctx, mk); err != nil {
			return err
		}
		profile, err := s.store.Profiles().Get(ctx, mk)
		if err != nil {
			return err
		}

		if update.CountryCode != nil {
			if _, err := s.store.Countries().Get(ctx, *update.CountryCode); err != nil {
				if errors.Is(err, errors.CodeNotFound) {
					return errors.InvalidValuef("COUNTRY_CODE_INVALID_ERROR", "country code %s is not valid", *update.CountryCode)
				}
				return err
			}
		}

		applyProfileUpdate(profile, update)
		if err := s.store.Profiles().Update(ctx, profile); err != nil {
			return err
		}
		if err := s.touch(ctx, s.now(), mk); err != nil {
			return err
		}
		if err := trxl.Append(ctx, models.OperationUpdate, EntityProfile, mk, map[string]any{"mk": mk, "update": update}); err != nil {
			return err
		}
		out, err = s.loadIndividual(ctx, mk)
		return err
	})
	return out, err
}

var clearableProfileFields = map[string]bool{"name": true, "email": true, "gender": true, "country_code": true}

func validateProfileUpdate(u models.ProfileUpdate) error {
	for _, f := range u.Clear {
		if !clearableProfileFields[f] {
			return errors.InvalidValuef("PROFILE_FIELD_INVALID_ERROR", "profile field '%s' cannot be cleared", f)
		}
	}
	if err := optionalString("name", u.Name); err != nil {
		return err
	}
	if err := optionalString("email", u.Email); err != nil {
		return err
	}
	if err := optionalString("gender", u.Gender); err != nil {
		return err
	}
	if err := optionalString("country_code", u.CountryCode); err != nil {
		return err
	}
	if u.GenderAcc != nil {
		if u.Gender == nil {
			return errors.InvalidValue("GENDER_ACC_INVALID_ERROR", "'gender_acc' can only be set when 'gender' is given")
		}
		if *u.GenderAcc < 1 || *u.GenderAcc > 100 {
			return errors.InvalidValuef("GENDER_ACC_INVALID_ERROR", "'gender_acc' (%d) is not in range (1,100)", *u.GenderAcc)
		}
	}
	return nil
}

func applyProfileUpdate(p *models.Profile, u models.ProfileUpdate) {
	if u.Name != nil {
		p.Name = u.Name
	}
	if u.Email != nil {
		p.Email = u.Email
	}
	if u.IsBot != nil {
		p.IsBot = *u.IsBot
	}
	if u.Gender != nil {
		p.Gender = u.Gender
		acc := 100
		if u.GenderAcc != nil {
			acc = *u.GenderAcc
		}
		p.GenderAcc = &acc
	}
	if u.CountryCode != nil {
		p.CountryCode = u.CountryCode
	}

	if u.Clears("name") {
		p.Name = nil
	}
	if u.Clears("email") {
		p.Email = nil
	}
	if u.Clears("gender") {
		p.Gender, p.GenderAcc = nil, nil
	}
	if u.Clears("country_code") {
		p.CountryCode = nil
	}
}

// GetIndividual returns an individual with its profile, identities and
// enrollments.
func (s *Service) GetIndividual(ctx context.Context, mk string) (*models.Individual, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.GetIndividual")
	defer span.End()
	return s.loadIndividual(ctx, mk)
}

// FindIndividualByUUID returns the individual owning identity uuid.
func (s *Service) FindIndividualByUUID(ctx context.Context, uuid string) (*models.Individual, error) {
	identity, err := s.store.Identities().Get(ctx, uuid)
	if err != nil {
		return nil, err
	}
	return s.loadIndividual(ctx, identity.IndividualMK)
}

// ListIdentities returns the identities matching filter ordered by uuid.
func (s *Service) ListIdentities(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.ListIdentities")
	defer span.End()
	return s.store.Identities().List(ctx, filter)
}

// ListIndividuals returns individuals matching filter, fully loaded.
func (s *Service) ListIndividuals(ctx context.Context, filter models.IndividualFilter) ([]models.Individual, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.ListIndividuals")
	defer span.End()

	if filter.Limit < 0 {
		return nil, errors.InvalidFilter("limit", "must be positive")
	}
	if filter.Offset < 0 {
		return nil, errors.InvalidFilter("offset", "must be positive")
	}
	for _, source := range filter.Sources {
		if err := requireString("source", source); err != nil {
			return nil, errors.InvalidFilter("source", err.Error())
		}
	}

	inds, err := s.store.Individuals().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]models.Individual, 0, len(inds))
	for _, ind := range inds {
		full, err := s.loadIndividual(ctx, ind.MK)
		if err != nil {
			return nil, err
		}
		out = append(out, *full)
	}
	return out, nil
}

func (s *Service) loadIndividual(ctx context.Context, mk string) (*models.Individual, error) {
	ind, err := s.store.Individuals().Get(ctx, mk)
	if err != nil {
		return nil, err
	}
	if ind.Profile, err = s.store.Profiles().Get(ctx, mk); err != nil && !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}
	if ind.Identities, err = s.store.Identities().ListByIndividual(ctx, mk); err != nil {
		return nil, err
	}
	if ind.Enrollments, err = s.store.Enrollments().ListByIndividual(ctx, mk); err != nil {
		return nil, err
	}
	for i := range ind.Enrollments {
		if ind.Enrollments[i].Group != nil {
			continue
		}
		if g, err := s.store.Groups().Get(ctx, ind.Enrollments[i].GroupID); err == nil {
			ind.Enrollments[i].Group = g
		}
	}
	return ind, nil
}
