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

type countries struct{ s *Store }

func (r countries) Get(ctx context.Context, code string) (*models.Country, error) {
	var out *models.Country
	err := r.s.read(ctx, func(st *state) error {
		c, ok := st.countries[code]
		if !ok {
			return errors.NotFound("country", code)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r countries) List(ctx context.Context) ([]models.Country, error) {
	var out []models.Country
	err := r.s.read(ctx, func(st *state) error {
		for _, c := range st.countries {
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

type exclusions struct{ s *Store }

func (r exclusions) Get(ctx context.Context, term string) (*models.MatchingExclusion, error) {
	var out *models.MatchingExclusion
	err := r.s.read(ctx, func(st *state) error {
		e, ok := st.exclusions[term]
		if !ok {
			return errors.NotFound("matching exclusion", term)
		}
		out = &e
		return nil
	})
	return out, err
}

func (r exclusions) Create(ctx context.Context, exclusion *models.MatchingExclusion) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.exclusions[exclusion.Term]; ok {
			return errors.AlreadyExists("matching exclusion", exclusion.Term)
		}
		exclusion.ID = st.nextID()
		st.exclusions[exclusion.Term] = *exclusion
		return nil
	})
}

func (r exclusions) Delete(ctx context.Context, term string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.exclusions[term]; !ok {
			return errors.NotFound("matching exclusion", term)
		}
		delete(st.exclusions, term)
		return nil
	})
}

func (r exclusions) List(ctx context.Context) ([]models.MatchingExclusion, error) {
	var out []models.MatchingExclusion
	err := r.s.read(ctx, func(st *state) error {
		for _, e := range st.exclusions {
			out = append(out, e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out, err
}

type transactions struct{ s *Store }

func (r transactions) CreateTransaction(ctx context.Context, trx *models.Transaction) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.transactions[trx.TUID]; ok {
			return errors.AlreadyExists("transaction", trx.TUID)
		}
		if trx.ClosedAt != nil || trx.IsClosed {
			return errors.InvalidValue("TRANSACTION_CLOSED_ERROR", "a transaction must be open when created")
		}
		stored := *trx
		stored.Operations = nil
		st.transactions[trx.TUID] = stored
		return nil
	})
}

func (r transactions) CloseTransaction(ctx context.Context, tuid string, at time.Time) error {
	return r.s.write(ctx, func(st *state) error {
		trx, ok := st.transactions[tuid]
		if !ok {
			return errors.NotFound("transaction", tuid)
		}
		if trx.IsClosed {
			return errors.ClosedTransaction(tuid)
		}
		trx.ClosedAt = &at
		trx.IsClosed = true
		st.transactions[tuid] = trx
		return nil
	})
}

func (r transactions) CreateOperation(ctx context.Context, op *models.Operation) error {
	return r.s.write(ctx, func(st *state) error {
		trx, ok := st.transactions[op.TUID]
		if !ok {
			return errors.NotFound("transaction", op.TUID)
		}
		if trx.IsClosed {
			return errors.ClosedTransaction(op.TUID)
		}
		st.operations = append(st.operations, *op)
		return nil
	})
}

func (r transactions) GetTransaction(ctx context.Context, tuid string) (*models.Transaction, error) {
	var out *models.Transaction
	err := r.s.read(ctx, func(st *state) error {
		trx, ok := st.transactions[tuid]
		if !ok {
			return errors.NotFound("transaction", tuid)
		}
		out = &trx
		return nil
	})
	return out, err
}

func (r transactions) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	var out []models.Transaction
	err := r.s.read(ctx, func(st *state) error {
		for _, trx := range st.transactions {
			if filter.Name != "" && !strings.HasPrefix(trx.Name, filter.Name) {
				continue
			}
			if filter.AuthoredBy != "" && (trx.AuthoredBy == nil || *trx.AuthoredBy != filter.AuthoredBy) {
				continue
			}
			if filter.FromDate != nil && trx.CreatedAt.Before(*filter.FromDate) {
				continue
			}
			if filter.ToDate != nil && trx.CreatedAt.After(*filter.ToDate) {
				continue
			}
			out = append(out, trx)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TUID < out[j].TUID
	})
	return paginate(out, filter.Offset, filter.Limit), err
}

func (r transactions) ListOperations(ctx context.Context, tuid string) ([]models.Operation, error) {
	var out []models.Operation
	err := r.s.read(ctx, func(st *state) error {
		for _, op := range st.operations {
			if tuid == "" || op.TUID == tuid {
				out = append(out, op)
			}
		}
		return nil
	})
	return out, err
}

type tasks struct{ s *Store }

func (r tasks) Get(ctx context.Context, id int64) (*models.ScheduledTask, error) {
	var out *models.ScheduledTask
	err := r.s.read(ctx, func(st *state) error {
		t, ok := st.tasks[id]
		if !ok {
			return errors.NotFound("scheduled task", fmt.Sprint(id))
		}
		out = &t
		return nil
	})
	return out, err
}

func (r tasks) Create(ctx context.Context, task *models.ScheduledTask) error {
	return r.s.write(ctx, func(st *state) error {
		task.ID = st.nextID()
		st.tasks[task.ID] = *task
		return nil
	})
}

func (r tasks) Update(ctx context.Context, task *models.ScheduledTask) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.tasks[task.ID]; !ok {
			return errors.NotFound("scheduled task", fmt.Sprint(task.ID))
		}
		st.tasks[task.ID] = *task
		return nil
	})
}

func (r tasks) Delete(ctx context.Context, id int64) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.tasks[id]; !ok {
			return errors.NotFound("scheduled task", fmt.Sprint(id))
		}
		delete(st.tasks, id)
		return nil
	})
}

func (r tasks) List(ctx context.Context) ([]models.ScheduledTask, error) {
	var out []models.ScheduledTask
	err := r.s.read(ctx, func(st *state) error {
		for _, t := range st.tasks {
			out = append(out, t)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}
