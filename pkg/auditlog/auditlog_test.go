package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sctx "github.com/Ramsey-B/sortinghat/pkg/context"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
)

type fakeStore struct {
	transactions map[string]*models.Transaction
	operations   []models.Operation
}

func newFakeStore() *fakeStore {
	return &fakeStore{transactions: map[string]*models.Transaction{}}
}

func (f *fakeStore) CreateTransaction(_ context.Context, trx *models.Transaction) error {
	cp := *trx
	f.transactions[trx.TUID] = &cp
	return nil
}

func (f *fakeStore) CloseTransaction(_ context.Context, tuid string, at time.Time) error {
	f.transactions[tuid].ClosedAt = &at
	f.transactions[tuid].IsClosed = true
	return nil
}

func (f *fakeStore) CreateOperation(_ context.Context, op *models.Operation) error {
	f.operations = append(f.operations, *op)
	return nil
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestLogLifecycle(t *testing.T) {
	store := newFakeStore()
	ctx := sctx.SetUserID(context.Background(), "jdoe")

	log, err := Open(ctx, store, "add_identity", fixedClock())
	require.NoError(t, err)

	trx := log.Transaction()
	require.Contains(t, store.transactions, trx.TUID)
	assert.Equal(t, "add_identity", trx.Name)
	require.NotNil(t, trx.AuthoredBy)
	assert.Equal(t, "jdoe", *trx.AuthoredBy)
	assert.False(t, trx.IsClosed)
	assert.Nil(t, trx.ClosedAt)

	require.NoError(t, log.Append(ctx, models.OperationAdd, "individual", "mk1", map[string]any{"mk": "mk1"}))
	require.NoError(t, log.Append(ctx, models.OperationAdd, "identity", "uuid1", map[string]any{"uuid": "uuid1"}))

	ops := log.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, 1, ops[0].Seq)
	assert.Equal(t, 2, ops[1].Seq)
	assert.True(t, ops[0].Timestamp.Before(ops[1].Timestamp))
	assert.JSONEq(t, `{"mk":"mk1"}`, string(ops[0].Args))
	assert.Equal(t, trx.TUID, ops[1].TUID)

	require.NoError(t, log.Close(ctx))
	assert.True(t, store.transactions[trx.TUID].IsClosed)
	assert.NotNil(t, store.transactions[trx.TUID].ClosedAt)

	err = log.Append(ctx, models.OperationDelete, "identity", "uuid1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeClosedTransaction))
	assert.Len(t, store.operations, 2)

	err = log.Close(ctx)
	assert.True(t, errors.Is(err, errors.CodeClosedTransaction))
}

func TestOpenSuffixesJobID(t *testing.T) {
	store := newFakeStore()
	ctx := sctx.SetJobID(context.Background(), "job-42")

	log, err := Open(ctx, store, "merge", nil)
	require.NoError(t, err)
	assert.Equal(t, "merge-job-42", log.Transaction().Name)
	assert.Nil(t, log.Transaction().AuthoredBy)
}

func TestDiscard(t *testing.T) {
	store := newFakeStore()
	log, err := Open(context.Background(), store, "delete_individual", nil)
	require.NoError(t, err)

	require.NoError(t, log.Append(context.Background(), models.OperationDelete, "individual", "mk", nil))
	log.Discard()
	assert.Empty(t, log.Operations())
}
