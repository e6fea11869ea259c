package registry

import (
	"context"
	"time"

	"github.com/Ramsey-B/sortinghat/pkg/auditlog"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/period"
)

// EnrollOptions tunes AddEnrollment. Strict rejects periods already covered
// by an existing enrollment in the same group.
type EnrollOptions struct {
	Strict bool
}

func enrollmentArgs(mk string, e models.Enrollment) map[string]any {
	args := map[string]any{
		"mk":       mk,
		"group_id": e.GroupID,
		"start":    e.Start,
		"end":      e.End,
	}
	if e.Group != nil {
		args["group"] = e.Group.Name
	}
	return args
}

// AddEnrollment enrolls mk in the group named by ref. Nil bounds default to
// the period sentinels.
func (s *Service) AddEnrollment(ctx context.Context, mk string, ref models.GroupRef, start, end *time.Time, opts EnrollOptions) (*models.Individual, error) {
	if err := requireString("mk", mk); err != nil {
		return nil, err
	}
	if err := requireString("group", ref.Name); err != nil {
		return nil, err
	}
	p, err := period.WithDefaults(start, end)
	if err != nil {
		return nil, err
	}

	var out *models.Individual
	err = s.run(ctx, "enroll", func(ctx context.Context, trxl *auditlog.Log) error {
		if _, err := s.unlocked(ctx, mk); err != nil {
			return err
		}
		group, err := s.resolveGroup(ctx, ref)
		if err != nil {
			return err
		}
		if err := s.enroll(ctx, trxl, mk, group, p, opts); err != nil {
			return err
		}
		out, err = s.loadIndividual(ctx, mk)
		return err
	})
	return out, err
}

func (s *Service) enroll(ctx context.Context, trxl *auditlog.Log, mk string, group *models.Group, p period.Period, opts EnrollOptions) error {
	existing, err := s.store.Enrollments().ListByIndividualAndGroup(ctx, mk, group.ID)
	if err != nil {
		return err
	}
	for _, e := range existing {
		current := period.Period{Start: e.Start, End: e.End}
		if current.Equal(p) {
			return errors.AlreadyExists("enrollment", mk+"-"+group.Name)
		}
		if opts.Strict && current.Contains(p) {
			return errors.DuplicateRange(group.Name, p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
		}
	}

	now := s.now()
	e := &models.Enrollment{
		IndividualMK: mk,
		GroupID:      group.ID,
		Start:        p.Start,
		End:          p.End,
		CreatedAt:    now,
		LastModified: now,
		Group:        group,
	}
	if err := s.store.Enrollments().Create(ctx, e); err != nil {
		return err
	}
	if err := s.touch(ctx, now, mk); err != nil {
		return err
	}
	return trxl.Append(ctx, models.OperationAdd, EntityEnrollment, mk, enrollmentArgs(mk, *e))
}

// DeleteEnrollment removes the enrollment of mk in ref covering exactly the
// given period.
func (s *Service) DeleteEnrollment(ctx context.Context, mk string, ref models.GroupRef, start, end *time.Time) (*models.Individual, error) {
	if err := requireString("mk", mk); err != nil {
		return nil, err
	}
	if err := requireString("group", ref.Name); err != nil {
		return nil, err
	}
	p, err := period.WithDefaults(start, end)
	if err != nil {
		return nil, err
	}

	var out *models.Individual
	err = s.run(ctx, "delete_enrollment", func(ctx context.Context, trxl *auditlog.Log) error {
		if _, err := s.unlocked(ctx, mk); err != nil {
			return err
		}
		group, err := s.resolveGroup(ctx, ref)
		if err != nil {
			return err
		}
		e, err := s.findEnrollment(ctx, mk, group, p)
		if err != nil {
			return err
		}
		if err := s.store.Enrollments().Delete(ctx, e.ID); err != nil {
			return err
		}
		if err := s.touch(ctx, s.now(), mk); err != nil {
			return err
		}
		e.Group = group
		if err := trxl.Append(ctx, models.OperationDelete, EntityEnrollment, mk, enrollmentArgs(mk, *e)); err != nil {
			return err
		}
		out, err = s.loadIndividual(ctx, mk)
		return err
	})
	return out, err
}

func (s *Service) findEnrollment(ctx context.Context, mk string, group *models.Group, p period.Period) (*models.Enrollment, error) {
	existing, err := s.store.Enrollments().ListByIndividualAndGroup(ctx, mk, group.ID)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].SamePeriod(p.Start, p.End) {
			return &existing[i], nil
		}
	}
	return nil, errors.NotFound("enrollment", mk+"-"+group.Name+"-"+p.Start.Format(time.RFC3339)+"-"+p.End.Format(time.RFC3339))
}

// Withdraw unenrolls mk from ref during the given period. Enrollments that
// extend past the period are cut back to it, splitting them when the period
// falls in the middle.
func (s *Service) Withdraw(ctx context.Context, mk string, ref models.GroupRef, start, end *time.Time) (*models.Individual, error) {
	if err := requireString("mk", mk); err != nil {
		return nil, err
	}
	if err := requireString("group", ref.Name); err != nil {
		return nil, err
	}
	cut, err := period.WithDefaults(start, end)
	if err != nil {
		return nil, err
	}

	var out *models.Individual
	err = s.run(ctx, "withdraw", func(ctx context.Context, trxl *auditlog.Log) error {
		if _, err := s.unlocked(ctx, mk); err != nil {
			return err
		}
		group, err := s.resolveGroup(ctx, ref)
		if err != nil {
			return err
		}
		existing, err := s.store.Enrollments().ListByIndividualAndGroup(ctx, mk, group.ID)
		if err != nil {
			return err
		}

		var affected []models.Enrollment
		for _, e := range existing {
			if (period.Period{Start: e.Start, End: e.End}).Overlaps(cut) {
				affected = append(affected, e)
			}
		}
		if len(affected) == 0 {
			return errors.NotFound("enrollment", mk+"-"+group.Name)
		}

		now := s.now()
		for _, e := range affected {
			if err := s.store.Enrollments().Delete(ctx, e.ID); err != nil {
				return err
			}
			e.Group = group
			if err := trxl.Append(ctx, models.OperationDelete, EntityEnrollment, mk, enrollmentArgs(mk, e)); err != nil {
				return err
			}
		}

		remaining, err := s.store.Enrollments().ListByIndividualAndGroup(ctx, mk, group.ID)
		if err != nil {
			return err
		}
		for _, e := range affected {
			for _, piece := range (period.Period{Start: e.Start, End: e.End}).Subtract(cut) {
				if containsPeriod(remaining, piece) {
					continue
				}
				ne := &models.Enrollment{
					IndividualMK: mk,
					GroupID:      group.ID,
					Start:        piece.Start,
					End:          piece.End,
					CreatedAt:    now,
					LastModified: now,
					Group:        group,
				}
				if err := s.store.Enrollments().Create(ctx, ne); err != nil {
					return err
				}
				remaining = append(remaining, *ne)
				if err := trxl.Append(ctx, models.OperationAdd, EntityEnrollment, mk, enrollmentArgs(mk, *ne)); err != nil {
					return err
				}
			}
		}

		if err := s.touch(ctx, now, mk); err != nil {
			return err
		}
		out, err = s.loadIndividual(ctx, mk)
		return err
	})
	return out, err
}

func containsPeriod(enrollments []models.Enrollment, p period.Period) bool {
	for _, e := range enrollments {
		if e.SamePeriod(p.Start, p.End) {
			return true
		}
	}
	return false
}

// UpdateEnrollment moves the bounds of the enrollment of mk in ref covering
// exactly from to the bounds of to.
func (s *Service) UpdateEnrollment(ctx context.Context, mk string, ref models.GroupRef, from period.Period, newStart, newEnd *time.Time) (*models.Individual, error) {
	if err := requireString("mk", mk); err != nil {
		return nil, err
	}
	if err := requireString("group", ref.Name); err != nil {
		return nil, err
	}
	to, err := period.Validate(newStart, newEnd, period.RejectOutOfBounds)
	if err != nil {
		return nil, err
	}

	var out *models.Individual
	err = s.run(ctx, "update_enrollment", func(ctx context.Context, trxl *auditlog.Log) error {
		if _, err := s.unlocked(ctx, mk); err != nil {
			return err
		}
		group, err := s.resolveGroup(ctx, ref)
		if err != nil {
			return err
		}
		current, err := s.findEnrollment(ctx, mk, group, from)
		if err != nil {
			return err
		}
		if current.SamePeriod(to.Start, to.End) {
			out, err = s.loadIndividual(ctx, mk)
			return err
		}

		if err := s.store.Enrollments().Delete(ctx, current.ID); err != nil {
			return err
		}
		now := s.now()
		updated := &models.Enrollment{
			IndividualMK: mk,
			GroupID:      group.ID,
			Start:        to.Start,
			End:          to.End,
			CreatedAt:    current.CreatedAt,
			LastModified: now,
			Group:        group,
		}
		if err := s.store.Enrollments().Create(ctx, updated); err != nil {
			return err
		}
		if err := s.touch(ctx, now, mk); err != nil {
			return err
		}

		args := enrollmentArgs(mk, *updated)
		args["from_start"], args["from_end"] = current.Start, current.End
		if err := trxl.Append(ctx, models.OperationUpdate, EntityEnrollment, mk, args); err != nil {
			return err
		}
		out, err = s.loadIndividual(ctx, mk)
		return err
	})
	return out, err
}

// resolveGroup finds the enrollment target named by ref. A team is looked up
// inside ref.ParentOrg when given. Otherwise organizations (by name, then
// alias) win over standalone groups, which win over free-floating teams.
func (s *Service) resolveGroup(ctx context.Context, ref models.GroupRef) (*models.Group, error) {
	if err := requireString("group", ref.Name); err != nil {
		return nil, err
	}

	if ref.ParentOrg != "" {
		org, err := s.findOrganization(ctx, ref.ParentOrg)
		if err != nil {
			return nil, err
		}
		return s.store.Groups().FindByName(ctx, models.GroupKindTeam, ref.Name, &org.ID)
	}

	org, err := s.findOrganization(ctx, ref.Name)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	for _, kind := range []models.GroupKind{models.GroupKindGroup, models.GroupKindTeam} {
		g, err := s.store.Groups().FindByName(ctx, kind, ref.Name, nil)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}
	}
	return nil, errors.NotFound("group", ref.Name)
}
