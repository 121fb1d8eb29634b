package flow

import (
	"fmt"
	"time"
)

// Status marks the outcome of a node execution.
type Status string

const (
	// StatusSuccess indicates the node produced a normal result.
	StatusSuccess Status = "success"
	// StatusError indicates the node failed; Meta.ErrorMessage is set and
	// routing treats the node as having taken its error output port.
	StatusError Status = "error"
)

// BinaryPayload carries binary data attached to an item.
type BinaryPayload struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
	Filename string `json:"filename,omitempty"`
}

// Item is one unit of payload data flowing along an edge. A node's output is
// always a list of items so multi-item fan-out stays uniform.
type Item struct {
	JSON   any            `json:"json"`
	Text   string         `json:"text,omitempty"`
	Binary *BinaryPayload `json:"binary,omitempty"`
}

// Meta carries execution metadata for one node execution.
type Meta struct {
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	// OutputPort is the port the result was emitted on, when the node
	// selected one explicitly (decision nodes, error routing).
	OutputPort string `json:"outputPort,omitempty"`
	// Cached is set when the result was served from the scriptlet cache.
	Cached bool `json:"cached,omitempty"`
}

// Envelope is the canonical unit of data on every edge: an ordered list of
// items plus execution metadata. Invariant: EndTime >= StartTime, and
// Status == StatusError implies ErrorMessage is non-empty.
type Envelope struct {
	Items []Item `json:"items"`
	Meta  Meta   `json:"meta"`
}

// NewEnvelope wraps a single value into a success envelope spanning the
// given time window.
func NewEnvelope(value any, start, end time.Time) *Envelope {
	return &Envelope{
		Items: []Item{{JSON: value}},
		Meta: Meta{
			StartTime: start,
			EndTime:   end,
			Status:    StatusSuccess,
		},
	}
}

// NewItemsEnvelope wraps a prepared item list into a success envelope.
func NewItemsEnvelope(items []Item, start, end time.Time) *Envelope {
	return &Envelope{
		Items: items,
		Meta: Meta{
			StartTime: start,
			EndTime:   end,
			Status:    StatusSuccess,
		},
	}
}

// NewErrorEnvelope builds an error envelope from err. The error message
// becomes both the meta error and a single item so downstream error handlers
// receive it as data.
func NewErrorEnvelope(err error, start time.Time) *Envelope {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &Envelope{
		Items: []Item{{JSON: map[string]any{"error": msg}}},
		Meta: Meta{
			StartTime:    start,
			EndTime:      time.Now(),
			Status:       StatusError,
			ErrorMessage: msg,
			OutputPort:   PortError,
		},
	}
}

// IsError reports whether the envelope carries an error result.
func (e *Envelope) IsError() bool {
	return e != nil && e.Meta.Status == StatusError
}

// First returns the first item's JSON value, or nil for an empty envelope.
func (e *Envelope) First() any {
	if e == nil || len(e.Items) == 0 {
		return nil
	}
	return e.Items[0].JSON
}

// Values returns the JSON values of all items in order.
func (e *Envelope) Values() []any {
	if e == nil {
		return nil
	}
	out := make([]any, len(e.Items))
	for i, item := range e.Items {
		out[i] = item.JSON
	}
	return out
}

// Validate checks the envelope invariants.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("envelope is nil")
	}
	if e.Meta.EndTime.Before(e.Meta.StartTime) {
		return fmt.Errorf("envelope endTime %s precedes startTime %s",
			e.Meta.EndTime.Format(time.RFC3339Nano), e.Meta.StartTime.Format(time.RFC3339Nano))
	}
	if e.Meta.Status == StatusError && e.Meta.ErrorMessage == "" {
		return fmt.Errorf("error envelope has no errorMessage")
	}
	return nil
}

// merge combines fired upstream envelopes targeting one input port. Items are
// concatenated in edge-declaration order; the merged window spans the earliest
// start to the latest end.
func merge(envelopes []*Envelope) *Envelope {
	if len(envelopes) == 1 {
		return envelopes[0]
	}
	merged := &Envelope{Meta: Meta{Status: StatusSuccess}}
	for i, env := range envelopes {
		merged.Items = append(merged.Items, env.Items...)
		if i == 0 || env.Meta.StartTime.Before(merged.Meta.StartTime) {
			merged.Meta.StartTime = env.Meta.StartTime
		}
		if env.Meta.EndTime.After(merged.Meta.EndTime) {
			merged.Meta.EndTime = env.Meta.EndTime
		}
		if env.IsError() {
			merged.Meta.Status = StatusError
			merged.Meta.ErrorMessage = env.Meta.ErrorMessage
		}
	}
	return merged
}
