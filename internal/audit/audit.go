// Package audit defines the contract between the document store and the
// audit trail, plus the sinks that deliver events to it. Delivery is always
// best effort: a failing sink never rolls back or blocks a store operation.
package audit

import (
	"context"
	"time"
)

// Action is the kind of operation being recorded.
type Action string

const (
	ActionCreate           Action = "CREATE"
	ActionUpdate           Action = "UPDATE"
	ActionRestore          Action = "RESTORE"
	ActionDownload         Action = "DOWNLOAD"
	ActionIntegrityCheck   Action = "INTEGRITY_CHECK"
	ActionIntegrityFailure Action = "INTEGRITY_FAILURE"
)

// Subject types understood by the sinks.
const (
	SubjectDocument = "document"
	SubjectFolder   = "folder"
)

// Subject references the entity an event is about.
type Subject struct {
	Type string `json:"type" yaml:"type"`
	ID   string `json:"id" yaml:"id"`
}

// Event is one audit notification.
type Event struct {
	ID          string         `json:"id" yaml:"id"`
	Actor       string         `json:"actor" yaml:"actor"`
	Subject     Subject        `json:"subject" yaml:"subject"`
	Action      Action         `json:"action" yaml:"action"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp" yaml:"timestamp"`
}

// Sink receives audit events.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })
