package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the readings topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// EventType names an alert lifecycle transition.
type EventType string

const (
	AlertCreated  EventType = "alert.created"
	AlertResolved EventType = "alert.resolved"
)

// AlertEvent is delivered to subscribers after the registry mutation that
// triggered it has been committed.
type AlertEvent struct {
	Type       EventType `json:"type"`
	Alert      Alert     `json:"alert"`
	OccurredAt time.Time `json:"occurred_at"`
}
