// Package events turns committed audit operations into the registry's
// change stream.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/sortinghat/pkg/metrics"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const (
	SchemaVersion = "1.0"

	defaultTimeout = 10 * time.Second
)

// OperationEvent is one audit operation as published. Events of a
// transaction share TUID and are ordered by Seq.
type OperationEvent struct {
	SchemaVersion   string               `json:"schema_version"`
	TUID            string               `json:"tuid"`
	TransactionName string               `json:"transaction_name"`
	AuthoredBy      *string              `json:"authored_by,omitempty"`
	OUID            string               `json:"ouid"`
	Seq             int                  `json:"seq"`
	OpType          models.OperationType `json:"op_type"`
	EntityType      string               `json:"entity_type"`
	Target          string               `json:"target"`
	Timestamp       time.Time            `json:"timestamp"`
	Args            json.RawMessage      `json:"args,omitempty"`
}

// MessagePublisher is satisfied by *kafka.Producer.
type MessagePublisher interface {
	Publish(ctx context.Context, msgs ...kafkago.Message) error
}

// Publisher is a registry commit hook. Publishing is best effort: a failure
// is logged and counted but never undoes the committed call.
type Publisher struct {
	producer MessagePublisher
	logger   ectologger.Logger
	timeout  time.Duration
}

func NewPublisher(producer MessagePublisher, logger ectologger.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   logger,
		timeout:  defaultTimeout,
	}
}

func NewEvent(trx models.Transaction, op models.Operation) OperationEvent {
	return OperationEvent{
		SchemaVersion:   SchemaVersion,
		TUID:            trx.TUID,
		TransactionName: trx.Name,
		AuthoredBy:      trx.AuthoredBy,
		OUID:            op.OUID,
		Seq:             op.Seq,
		OpType:          op.OpType,
		EntityType:      op.EntityType,
		Target:          op.Target,
		Timestamp:       op.Timestamp,
		Args:            op.Args,
	}
}

// Messages builds one message per operation, keyed by target so every
// change to an entity lands on the same partition.
func Messages(ctx context.Context, trx models.Transaction, ops []models.Operation) ([]kafkago.Message, error) {
	traceParent := tracing.GetTraceParent(ctx)

	msgs := make([]kafkago.Message, 0, len(ops))
	for _, op := range ops {
		value, err := json.Marshal(NewEvent(trx, op))
		if err != nil {
			return nil, err
		}
		headers := []kafkago.Header{
			{Key: "tuid", Value: []byte(trx.TUID)},
			{Key: "op_type", Value: []byte(op.OpType)},
			{Key: "entity_type", Value: []byte(op.EntityType)},
			{Key: "seq", Value: []byte(strconv.Itoa(op.Seq))},
			{Key: "schema_version", Value: []byte(SchemaVersion)},
		}
		if traceParent != "" {
			headers = append(headers, kafkago.Header{Key: "traceparent", Value: []byte(traceParent)})
		}
		msgs = append(msgs, kafkago.Message{
			Key:     []byte(op.Target),
			Value:   value,
			Headers: headers,
			Time:    op.Timestamp,
		})
	}
	return msgs, nil
}

func (p *Publisher) OnCommit(ctx context.Context, trx models.Transaction, ops []models.Operation) {
	if len(ops) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "events.Publisher.OnCommit")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tuid":       trx.TUID,
		"operations": len(ops),
	})

	msgs, err := Messages(ctx, trx, ops)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("failed").Add(float64(len(ops)))
		log.WithError(err).Error("Failed to encode operation events")
		return
	}
	if err := p.producer.Publish(ctx, msgs...); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("failed").Add(float64(len(ops)))
		log.WithError(err).Error("Failed to publish operation events")
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues("published").Add(float64(len(ops)))
	log.Debug("Published operation events")
}
