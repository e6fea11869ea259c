package registry

import (
	"context"
	"sort"

	"github.com/Ramsey-B/sortinghat/pkg/auditlog"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/metrics"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/normalizers"
	"github.com/Ramsey-B/sortinghat/pkg/period"
)

// MergeIndividuals merges fromMK into toMK and returns the resulting
// individual. Merging an individual into itself is a no-op.
func (s *Service) MergeIndividuals(ctx context.Context, fromMK, toMK string) (*models.Individual, error) {
	if err := requireString("from_mk", fromMK); err != nil {
		return nil, err
	}
	if err := requireString("to_mk", toMK); err != nil {
		return nil, err
	}
	if fromMK == toMK {
		return s.loadIndividual(ctx, toMK)
	}

	var out *models.Individual
	err := s.run(ctx, "merge", func(ctx context.Context, trxl *auditlog.Log) error {
		if err := s.merge(ctx, trxl, fromMK, toMK); err != nil {
			return err
		}
		var err error
		out, err = s.loadIndividual(ctx, toMK)
		return err
	})
	return out, err
}

// MergeMany merges every individual in fromMKs into toMK in one transaction.
// toMK may not appear in fromMKs.
func (s *Service) MergeMany(ctx context.Context, fromMKs []string, toMK string) (*models.Individual, error) {
	if err := requireString("to_mk", toMK); err != nil {
		return nil, err
	}
	if len(fromMKs) == 0 {
		return nil, errors.InvalidValue("FROM_MKS_EMPTY_ERROR", "'from_mks' cannot be empty")
	}
	for _, mk := range fromMKs {
		if err := requireString("from_mk", mk); err != nil {
			return nil, err
		}
		if mk == toMK {
			return nil, errors.EqualIndividual(mk)
		}
	}

	var out *models.Individual
	err := s.run(ctx, "merge", func(ctx context.Context, trxl *auditlog.Log) error {
		for _, mk := range fromMKs {
			if err := s.merge(ctx, trxl, mk, toMK); err != nil {
				return err
			}
		}
		var err error
		out, err = s.loadIndividual(ctx, toMK)
		return err
	})
	return out, err
}

func (s *Service) merge(ctx context.Context, trxl *auditlog.Log, fromMK, toMK string) error {
	if fromMK == toMK {
		return nil
	}

	from, err := s.loadIndividual(ctx, fromMK)
	if err != nil {
		return err
	}
	to, err := s.loadIndividual(ctx, toMK)
	if err != nil {
		return err
	}
	if from.IsLocked {
		return errors.Locked(fromMK)
	}
	if to.IsLocked {
		return errors.Locked(toMK)
	}

	now := s.now()

	if from.Profile != nil && to.Profile != nil {
		if changed := reconcileProfiles(to.Profile, from.Profile); changed {
			if err := s.store.Profiles().Update(ctx, to.Profile); err != nil {
				return err
			}
			if err := trxl.Append(ctx, models.OperationUpdate, EntityProfile, toMK, map[string]any{
				"mk": toMK, "merged_from": fromMK,
			}); err != nil {
				return err
			}
		}
	}

	for _, identity := range from.Identities {
		if err := s.store.Identities().Reparent(ctx, identity.UUID, toMK, now); err != nil {
			return err
		}
		if err := trxl.Append(ctx, models.OperationUpdate, EntityIdentity, identity.UUID, map[string]any{
			"uuid": identity.UUID, "from_mk": fromMK, "to_mk": toMK,
		}); err != nil {
			return err
		}
	}

	for _, e := range from.Enrollments {
		duplicate := false
		for _, existing := range to.Enrollments {
			if existing.GroupID == e.GroupID && existing.SamePeriod(e.Start, e.End) {
				duplicate = true
				break
			}
		}

		if duplicate {
			if err := s.store.Enrollments().Delete(ctx, e.ID); err != nil {
				return err
			}
			if err := trxl.Append(ctx, models.OperationDelete, EntityEnrollment, fromMK, enrollmentArgs(fromMK, e)); err != nil {
				return err
			}
			continue
		}

		if err := s.store.Enrollments().Reparent(ctx, e.ID, toMK, now); err != nil {
			return err
		}
		args := enrollmentArgs(toMK, e)
		args["from_mk"] = fromMK
		if err := trxl.Append(ctx, models.OperationUpdate, EntityEnrollment, toMK, args); err != nil {
			return err
		}
	}

	from.Identities, from.Enrollments = nil, nil
	if err := s.deleteIndividual(ctx, trxl, from); err != nil {
		return err
	}
	if err := s.touch(ctx, now, toMK); err != nil {
		return err
	}

	enrollments, err := s.store.Enrollments().ListByIndividual(ctx, toMK)
	if err != nil {
		return err
	}
	groupIDs := map[int64]bool{}
	for _, e := range enrollments {
		groupIDs[e.GroupID] = true
	}
	ids := make([]int64, 0, len(groupIDs))
	for id := range groupIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := s.mergeEnrollments(ctx, trxl, toMK, id); err != nil {
			return err
		}
	}

	metrics.MergesTotal.Inc()
	return nil
}

// reconcileProfiles fills the empty fields of dst from src. is_bot becomes
// the disjunction of both. It reports whether dst changed.
func reconcileProfiles(dst, src *models.Profile) bool {
	changed := false
	fill := func(d **string, v *string) {
		if normalizers.IsBlank(*d) && !normalizers.IsBlank(v) {
			*d = v
			changed = true
		}
	}

	fill(&dst.Name, src.Name)
	fill(&dst.Email, src.Email)
	fill(&dst.CountryCode, src.CountryCode)
	if normalizers.IsBlank(dst.Gender) && !normalizers.IsBlank(src.Gender) {
		dst.Gender = src.Gender
		dst.GenderAcc = src.GenderAcc
		changed = true
	}
	if src.IsBot && !dst.IsBot {
		dst.IsBot = true
		changed = true
	}
	return changed
}

// MoveIdentity reparents identity uuid under toMK. When toMK does not exist
// and equals uuid, a new individual is created to receive it.
func (s *Service) MoveIdentity(ctx context.Context, uuid, toMK string) (*models.Individual, error) {
	if err := requireString("uuid", uuid); err != nil {
		return nil, err
	}
	if err := requireString("to_mk", toMK); err != nil {
		return nil, err
	}

	var out *models.Individual
	err := s.run(ctx, "move_identity", func(ctx context.Context, trxl *auditlog.Log) error {
		identity, err := s.store.Identities().Get(ctx, uuid)
		if err != nil {
			return err
		}

		target, err := s.store.Individuals().Get(ctx, toMK)
		switch {
		case err == nil:
		case errors.Is(err, errors.CodeNotFound) && toMK == uuid:
			if identity.IndividualMK == toMK {
				break
			}
			if _, err := s.unlocked(ctx, identity.IndividualMK); err != nil {
				return err
			}
			if err := s.createIndividual(ctx, trxl, toMK); err != nil {
				return err
			}
			if target, err = s.store.Individuals().Get(ctx, toMK); err != nil {
				return err
			}
		default:
			return err
		}

		if identity.IndividualMK == toMK {
			return errors.InvalidValuef("MOVE_SAME_INDIVIDUAL_ERROR", "identity %s is already assigned to %s", uuid, toMK)
		}
		if _, err := s.unlocked(ctx, identity.IndividualMK); err != nil {
			return err
		}
		if target.IsLocked {
			return errors.Locked(toMK)
		}

		now := s.now()
		if err := s.store.Identities().Reparent(ctx, uuid, toMK, now); err != nil {
			return err
		}
		if err := s.touch(ctx, now, identity.IndividualMK, toMK); err != nil {
			return err
		}
		if err := trxl.Append(ctx, models.OperationUpdate, EntityIdentity, uuid, map[string]any{
			"uuid": uuid, "from_mk": identity.IndividualMK, "to_mk": toMK,
		}); err != nil {
			return err
		}

		out, err = s.loadIndividual(ctx, toMK)
		return err
	})
	return out, err
}

// MergeEnrollments collapses the overlapping enrollments of mk in group into
// a minimal disjoint set.
func (s *Service) MergeEnrollments(ctx context.Context, mk string, ref models.GroupRef) (*models.Individual, error) {
	if err := requireString("mk", mk); err != nil {
		return nil, err
	}

	var out *models.Individual
	err := s.run(ctx, "merge_enrollments", func(ctx context.Context, trxl *auditlog.Log) error {
		if _, err := s.unlocked(ctx, mk); err != nil {
			return err
		}
		group, err := s.resolveGroup(ctx, ref)
		if err != nil {
			return err
		}
		if err := s.mergeEnrollments(ctx, trxl, mk, group.ID); err != nil {
			return err
		}
		out, err = s.loadIndividual(ctx, mk)
		return err
	})
	return out, err
}

func (s *Service) mergeEnrollments(ctx context.Context, trxl *auditlog.Log, mk string, groupID int64) error {
	existing, err := s.store.Enrollments().ListByIndividualAndGroup(ctx, mk, groupID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return errors.NotFound("enrollment", mk)
	}

	periods := make([]period.Period, len(existing))
	for i, e := range existing {
		periods[i] = period.Period{Start: e.Start, End: e.End}
	}
	merged, err := period.Merge(periods, true)
	if err != nil {
		return err
	}

	inMerged := func(e models.Enrollment) bool {
		for _, p := range merged {
			if e.SamePeriod(p.Start, p.End) {
				return true
			}
		}
		return false
	}
	materialized := func(p period.Period) bool {
		for _, e := range existing {
			if e.SamePeriod(p.Start, p.End) {
				return true
			}
		}
		return false
	}

	changed := false
	for _, e := range existing {
		if inMerged(e) {
			continue
		}
		if err := s.store.Enrollments().Delete(ctx, e.ID); err != nil {
			return err
		}
		if err := trxl.Append(ctx, models.OperationDelete, EntityEnrollment, mk, enrollmentArgs(mk, e)); err != nil {
			return err
		}
		changed = true
	}

	now := s.now()
	for _, p := range merged {
		if materialized(p) {
			continue
		}
		e := &models.Enrollment{
			IndividualMK: mk,
			GroupID:      groupID,
			Start:        p.Start,
			End:          p.End,
			CreatedAt:    now,
			LastModified: now,
		}
		if err := s.store.Enrollments().Create(ctx, e); err != nil {
			return err
		}
		if err := trxl.Append(ctx, models.OperationAdd, EntityEnrollment, mk, enrollmentArgs(mk, *e)); err != nil {
			return err
		}
		changed = true
	}

	if changed {
		return s.touch(ctx, now, mk)
	}
	return nil
}
