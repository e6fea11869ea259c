// Package auditlog records every registry mutation as operations framed by a
// transaction.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	sctx "github.com/Ramsey-B/sortinghat/pkg/context"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
)

// Store persists transactions and operations.
type Store interface {
	CreateTransaction(ctx context.Context, trx *models.Transaction) error
	CloseTransaction(ctx context.Context, tuid string, at time.Time) error
	CreateOperation(ctx context.Context, op *models.Operation) error
}

// Log is one open audit transaction. Operations appended to it are written
// through the context's store transaction, so they are discarded together
// with the data changes when that transaction rolls back.
type Log struct {
	store Store
	now   func() time.Time

	mu     sync.Mutex
	trx    models.Transaction
	ops    []models.Operation
	closed bool
}

// Open creates the transaction record. The name is suffixed with the job id
// carried by ctx, and authored_by is the authenticated user, if any.
func Open(ctx context.Context, store Store, name string, now func() time.Time) (*Log, error) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	if jobID := sctx.GetJobID(ctx); jobID != "" {
		name = fmt.Sprintf("%s-%s", name, jobID)
	}

	trx := models.Transaction{
		TUID:      newID(),
		Name:      name,
		CreatedAt: now(),
	}
	if user := sctx.GetUserID(ctx); user != "" {
		trx.AuthoredBy = &user
	}

	if err := store.CreateTransaction(ctx, &trx); err != nil {
		return nil, err
	}

	return &Log{store: store, now: now, trx: trx}, nil
}

// Append records one operation. args is serialized to JSON as the forensic
// record of the call's inputs.
func (l *Log) Append(ctx context.Context, opType models.OperationType, entityType, target string, args any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.ClosedTransaction(l.trx.TUID)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return errors.InvalidValuef("OPERATION_ARGS_ERROR", "operation args cannot be serialized: %v", err)
	}

	op := models.Operation{
		OUID:       newID(),
		TUID:       l.trx.TUID,
		Seq:        len(l.ops) + 1,
		OpType:     opType,
		EntityType: entityType,
		Target:     target,
		Timestamp:  l.now(),
		Args:       raw,
	}
	if err := l.store.CreateOperation(ctx, &op); err != nil {
		return err
	}

	l.ops = append(l.ops, op)
	return nil
}

// Close marks the transaction closed. Appending afterwards fails.
func (l *Log) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.ClosedTransaction(l.trx.TUID)
	}

	at := l.now()
	if err := l.store.CloseTransaction(ctx, l.trx.TUID, at); err != nil {
		return err
	}

	l.closed = true
	l.trx.ClosedAt = &at
	l.trx.IsClosed = true
	return nil
}

// Discard forgets the operations appended so far. It is called when the
// enclosing store transaction rolled back.
func (l *Log) Discard() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = nil
}

func (l *Log) Transaction() models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trx
}

// Operations returns the operations appended so far, in append order.
func (l *Log) Operations() []models.Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Operation, len(l.ops))
	copy(out, l.ops)
	return out
}

func (l *Log) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func newID() string {
	return uuid.NewString()
}
