package events_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/Gobusters/ectologger"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sortinghat/internal/repositories/memory"
	"github.com/Ramsey-B/sortinghat/pkg/events"
	"github.com/Ramsey-B/sortinghat/pkg/kafka"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
)

type fakeWriter struct {
	msgs []kafkago.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func headers(msg kafkago.Message) map[string]string {
	out := map[string]string{}
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func TestPublisherPublishesCommittedOperations(t *testing.T) {
	w := &fakeWriter{}
	producer := kafka.NewProducerWithWriter(w, "", newLogger())
	svc := registry.NewService(memory.NewStore(), newLogger(),
		registry.WithHooks(events.NewPublisher(producer, newLogger())))

	email := "jsmith@example.com"
	identity, err := svc.AddIdentity(context.Background(), models.IdentityData{Source: "scm", Email: &email}, nil)
	require.NoError(t, err)

	require.Len(t, w.msgs, 2)
	ind, id := w.msgs[0], w.msgs[1]

	assert.Equal(t, kafka.DefaultTopic, ind.Topic)
	assert.Equal(t, identity.IndividualMK, string(ind.Key))
	assert.Equal(t, identity.UUID, string(id.Key))

	h := headers(id)
	assert.Equal(t, "ADD", h["op_type"])
	assert.Equal(t, registry.EntityIdentity, h["entity_type"])
	assert.Equal(t, headers(ind)["tuid"], h["tuid"])
	assert.Equal(t, "2", h["seq"])

	var event events.OperationEvent
	require.NoError(t, json.Unmarshal(id.Value, &event))
	assert.Equal(t, "add_identity", event.TransactionName)
	assert.Equal(t, identity.UUID, event.Target)
	assert.Equal(t, events.SchemaVersion, event.SchemaVersion)

	var args map[string]any
	require.NoError(t, json.Unmarshal(event.Args, &args))
	assert.Equal(t, "scm", args["source"])
}

func TestPublisherFailureDoesNotFailCall(t *testing.T) {
	w := &fakeWriter{err: stderrors.New("broker down")}
	producer := kafka.NewProducerWithWriter(w, "ops", newLogger())
	svc := registry.NewService(memory.NewStore(), newLogger(),
		registry.WithHooks(events.NewPublisher(producer, newLogger())))

	_, err := svc.AddOrganization(context.Background(), "Example")
	require.NoError(t, err)
	assert.Empty(t, w.msgs)

	org, err := svc.FindOrganization(context.Background(), "Example")
	require.NoError(t, err)
	assert.Equal(t, "Example", org.Name)
}

func TestFailedCallPublishesNothing(t *testing.T) {
	w := &fakeWriter{}
	producer := kafka.NewProducerWithWriter(w, "ops", newLogger())
	svc := registry.NewService(memory.NewStore(), newLogger(),
		registry.WithHooks(events.NewPublisher(producer, newLogger())))

	_, err := svc.DeleteOrganization(context.Background(), "Missing")
	require.Error(t, err)
	assert.Empty(t, w.msgs)
}
