package models

import (
	"encoding/json"
	"time"
)

type OperationType string

const (
	OperationAdd    OperationType = "ADD"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
)

// Transaction frames the operations of one top-level registry call.
type Transaction struct {
	TUID       string     `json:"tuid" db:"tuid"`
	Name       string     `json:"name" db:"name"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ClosedAt   *time.Time `json:"closed_at" db:"closed_at"`
	IsClosed   bool       `json:"is_closed" db:"is_closed"`
	AuthoredBy *string    `json:"authored_by" db:"authored_by"`

	Operations []Operation `json:"operations,omitempty" db:"-"`
}

// Operation is one audit record. Seq orders operations inside a transaction.
type Operation struct {
	OUID       string          `json:"ouid" db:"ouid"`
	TUID       string          `json:"tuid" db:"tuid"`
	Seq        int             `json:"seq" db:"seq"`
	OpType     OperationType   `json:"op_type" db:"op_type"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	Target     string          `json:"target" db:"target"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
	Args       json.RawMessage `json:"args" db:"args"`
}

type TransactionFilter struct {
	Name       string
	AuthoredBy string
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}

// ScheduledTask is a periodic background job. Interval is in minutes; zero
// means the task runs once and is then retired.
type ScheduledTask struct {
	ID            int64           `json:"id" db:"id"`
	JobID         *string         `json:"job_id" db:"job_id"`
	JobType       string          `json:"job_type" db:"job_type"`
	Interval      int             `json:"interval" db:"interval_minutes"`
	Args          json.RawMessage `json:"args" db:"args"`
	LastExecution *time.Time      `json:"last_execution" db:"last_execution"`
	Executions    int             `json:"executions" db:"executions"`
	Failures      int             `json:"failures" db:"failures"`
	Failed        bool            `json:"failed" db:"failed"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	LastModified  time.Time       `json:"last_modified" db:"last_modified"`
}

// Retired reports whether a one-shot task has already run.
func (t ScheduledTask) Retired() bool {
	return t.Interval == 0 && t.Executions+t.Failures > 0
}

// DueAt returns when the task should next run.
func (t ScheduledTask) DueAt() time.Time {
	if t.LastExecution == nil {
		return t.CreatedAt
	}
	return t.LastExecution.Add(time.Duration(t.Interval) * time.Minute)
}
