package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const (
	transactionsTable = "transactions"
	operationsTable   = "operations"
)

var (
	transactionColumns = []string{"tuid", "name", "created_at", "closed_at", "is_closed", "authored_by"}
	operationColumns   = []string{"ouid", "tuid", "seq", "op_type", "entity_type", "target", "timestamp", "args"}
)

// Repository persists the transactions and operations of the audit log.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreateTransaction(ctx context.Context, trx *models.Transaction) error {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.CreateTransaction")
	defer span.End()

	ib := database.NewInsertBuilder(transactionsTable, transactionColumns...)
	ib.Values(trx.TUID, trx.Name, trx.CreatedAt, trx.ClosedAt, trx.IsClosed, trx.AuthoredBy)
	query, args := ib.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return errors.AlreadyExists("transaction", trx.TUID)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("tuid", trx.TUID).Error("failed to create transaction")
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *Repository) CloseTransaction(ctx context.Context, tuid string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.CloseTransaction")
	defer span.End()

	ub := database.NewUpdateBuilder(transactionsTable)
	ub.Set(ub.Assign("is_closed", true), ub.Assign("closed_at", at))
	ub.Where(ub.Equal("tuid", tuid))
	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tuid", tuid).Error("failed to close transaction")
		return fmt.Errorf("failed to close transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("transaction", tuid)
	}
	return nil
}

func (r *Repository) CreateOperation(ctx context.Context, op *models.Operation) error {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.CreateOperation")
	defer span.End()

	ib := database.NewInsertBuilder(operationsTable, operationColumns...)
	ib.Values(op.OUID, op.TUID, op.Seq, op.OpType, op.EntityType, op.Target, op.Timestamp, jsonArg(op.Args))
	query, args := ib.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if database.IsForeignKeyViolation(err) {
			return errors.NotFound("transaction", op.TUID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tuid": op.TUID,
			"seq":  op.Seq,
		}).Error("failed to create operation")
		return fmt.Errorf("failed to create operation: %w", err)
	}
	return nil
}

func (r *Repository) GetTransaction(ctx context.Context, tuid string) (*models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.GetTransaction")
	defer span.End()

	sb := database.NewSelectBuilder(transactionsTable, transactionColumns...)
	sb.Where(sb.Equal("tuid", tuid))
	query, args := sb.Build()

	var trx models.Transaction
	if err := database.Executor(ctx, r.db).GetContext(ctx, &trx, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NotFound("transaction", tuid)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get transaction")
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &trx, nil
}

// ListTransactions returns transactions in creation order. Name matches as a
// prefix.
func (r *Repository) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.ListTransactions")
	defer span.End()

	sb := database.NewSelectBuilder(transactionsTable, transactionColumns...)
	if filter.Name != "" {
		sb.Where(sb.Like("name", filter.Name+"%"))
	}
	if filter.AuthoredBy != "" {
		sb.Where(sb.Equal("authored_by", filter.AuthoredBy))
	}
	if filter.FromDate != nil {
		sb.Where(sb.GreaterEqualThan("created_at", *filter.FromDate))
	}
	if filter.ToDate != nil {
		sb.Where(sb.LessEqualThan("created_at", *filter.ToDate))
	}
	sb.OrderBy("created_at", "tuid").Asc()
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}
	query, args := sb.Build()

	var out []models.Transaction
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list transactions")
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return out, nil
}

// ListOperations returns the operations of tuid in sequence, or every
// operation when tuid is empty.
func (r *Repository) ListOperations(ctx context.Context, tuid string) ([]models.Operation, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.ListOperations")
	defer span.End()

	sb := database.NewSelectBuilder(operationsTable, operationColumns...)
	if tuid != "" {
		sb.Where(sb.Equal("tuid", tuid))
	}
	sb.OrderBy("timestamp", "tuid", "seq").Asc()
	query, args := sb.Build()

	var out []models.Operation
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list operations")
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return out, nil
}

// jsonArg passes JSON to lib/pq as text; raw bytes would be sent as bytea.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
