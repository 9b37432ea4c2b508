package event

import (
	"encoding/json"
	"time"
)

// EventType is the classification tag assigned by a rule.
// It is unrelated to Event.Type, which is the producer's own type field.
type EventType string

// Status is the outcome recorded by the event producer.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Event is an immutable record of a single occurrence in an execution trace.
type Event struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Type      string    `json:"type" bson:"type"` // native type set by the producer
	StartTime time.Time `json:"start_time" bson:"start_time"`
	EndTime   time.Time `json:"end_time" bson:"end_time"`
	Status    Status    `json:"status" bson:"status"`
	ParentID  string    `json:"parent_id,omitempty" bson:"parent_id,omitempty"`
	Body      []Block   `json:"body,omitempty" bson:"body,omitempty"`
}

// HasParent reports whether the event references a parent.
func (e *Event) HasParent() bool {
	return e.ParentID != ""
}

// Weight approximates the memory held by the event body; used by caches.
func (e *Event) Weight() int {
	w := len(e.ID) + len(e.Name) + len(e.Type) + len(e.ParentID)
	for _, b := range e.Body {
		w += b.weight()
	}
	return w
}

// Messages returns the data of every message block in body order.
func (e *Event) Messages() []string {
	var out []string
	for _, b := range e.Body {
		if b.Kind == BlockMessage {
			out = append(out, b.Data)
		}
	}
	return out
}

// References returns the event ids of every reference block.
func (e *Event) References() []string {
	var out []string
	for _, b := range e.Body {
		if b.Kind == BlockReference {
			out = append(out, b.EventID)
		}
	}
	return out
}

// BlockKind discriminates body content blocks.
type BlockKind string

const (
	BlockMessage   BlockKind = "message"
	BlockReference BlockKind = "reference"
	BlockTable     BlockKind = "table"
)

// Block is one content block of an event body. Exactly the fields of its Kind are set;
// unknown kinds keep their raw properties in Props.
type Block struct {
	Kind    BlockKind           `json:"type" bson:"type"`
	Data    string              `json:"data,omitempty" bson:"data,omitempty"`
	EventID string              `json:"event_id,omitempty" bson:"event_id,omitempty"`
	Rows    []map[string]string `json:"rows,omitempty" bson:"rows,omitempty"`
	Props   map[string]any      `json:"-" bson:"props,omitempty"`
}

func (b Block) weight() int {
	w := len(b.Kind) + len(b.Data) + len(b.EventID)
	for _, row := range b.Rows {
		for k, v := range row {
			w += len(k) + len(v)
		}
	}
	return w + 16*len(b.Props)
}

// UnmarshalJSON keeps the properties of unrecognised block kinds.
func (b *Block) UnmarshalJSON(data []byte) error {
	type plain Block
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = Block(p)
	switch b.Kind {
	case BlockMessage, BlockReference, BlockTable:
		return nil
	}
	var props map[string]any
	if err := json.Unmarshal(data, &props); err != nil {
		return err
	}
	delete(props, "type")
	b.Props = props
	return nil
}
