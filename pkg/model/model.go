package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Measurement scale statuses.
const (
	StatusTargetMet     = "target_met"
	StatusNearTargetMet = "near_target_met"
	StatusDebtTargetMet = "debt_target_met"
	StatusTargetNotMet  = "target_not_met"
)

// Measurement is one snapshot of a metric's evaluation, valid over the time
// window [Start, End]. End is advanced in place when a later collection turns
// out to be identical; all other fields are immutable once stored.
type Measurement struct {
	MeasurementUUID string                  `json:"measurement_uuid,omitempty"`
	MetricUUID      string                  `json:"metric_uuid"`
	Start           time.Time               `json:"start,omitzero"`
	End             time.Time               `json:"end,omitzero"`
	Sources         []*SourceResult         `json:"sources"`
	Scales          map[string]*ScaleResult `json:"scales,omitempty"`
	Delta           *Delta                  `json:"delta,omitempty"`
}

// Successful reports whether every source was fetched and parsed without
// error. Unsuccessful measurements are stored too, but are skipped when
// selecting the annotation baseline for the next collection cycle.
func (m *Measurement) Successful() bool {
	for _, s := range m.Sources {
		if s.ConnectionError != "" || s.ParseError != "" {
			return false
		}
	}
	return true
}

// Source returns the source result with the given UUID, or nil.
func (m *Measurement) Source(sourceUUID string) *SourceResult {
	for _, s := range m.Sources {
		if s.SourceUUID == sourceUUID {
			return s
		}
	}
	return nil
}

// SourceResult is one collector's contribution to a measurement.
type SourceResult struct {
	SourceUUID string    `json:"source_uuid"`
	Value      string    `json:"value,omitempty"`
	Total      string    `json:"total,omitempty"`
	Entities   []*Entity `json:"entities,omitempty"`

	// EntityUserData maps entity keys to user-entered annotations
	// (attribute name -> value). It never originates from the collector;
	// the server migrates it forward across collection cycles.
	EntityUserData map[string]map[string]any `json:"entity_user_data,omitempty"`

	// ConnectionError and ParseError mark the source as unsuccessfully
	// collected. The measurement is still ingested.
	ConnectionError string `json:"connection_error,omitempty"`
	ParseError      string `json:"parse_error,omitempty"`
}

// Entity returns the entity with the given key, or nil.
func (s *SourceResult) Entity(key string) *Entity {
	for _, e := range s.Entities {
		if e.Key == key {
			return e
		}
	}
	return nil
}

// Entity is one countable unit found by a collector: a job, a test, a
// finding. On the wire an entity is a flat JSON object; "key" and "old_key"
// are the reserved fields, everything else is a domain attribute.
type Entity struct {
	// Key uniquely identifies the entity within its source result.
	Key string

	// OldKey, when present, hints that this entity replaces a previously
	// stored entity whose annotations should be carried forward.
	OldKey string

	Attributes map[string]string
}

// Description returns the human-readable identification of the entity: its
// attribute values except url, joined by "/" in attribute-name order.
func (e *Entity) Description() string {
	names := make([]string, 0, len(e.Attributes))
	for name := range e.Attributes {
		if name != "url" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	values := make([]string, 0, len(names))
	for _, name := range names {
		values = append(values, e.Attributes[name])
	}
	return strings.Join(values, "/")
}

func (e *Entity) MarshalJSON() ([]byte, error) {
	obj := make(map[string]string, len(e.Attributes)+2)
	for k, v := range e.Attributes {
		obj[k] = v
	}
	obj["key"] = e.Key
	if e.OldKey != "" {
		obj["old_key"] = e.OldKey
	}
	return json.Marshal(obj)
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	e.Key = obj["key"]
	e.OldKey = obj["old_key"]
	delete(obj, "key")
	delete(obj, "old_key")
	e.Attributes = nil
	if len(obj) > 0 {
		e.Attributes = obj
	}
	return nil
}

// ScaleResult holds the per-scale values computed when a measurement is
// stored: the measured value, the resulting status, and a snapshot of the
// targets in effect at that moment.
type ScaleResult struct {
	Value      string  `json:"value,omitempty"`
	Status     string  `json:"status,omitempty"`
	Direction  string  `json:"direction,omitempty"`
	Target     string  `json:"target,omitempty"`
	NearTarget string  `json:"near_target,omitempty"`
	DebtTarget *string `json:"debt_target,omitempty"`
}

// Delta is the audit record attached to a measurement created by a user edit.
type Delta struct {
	UUIDs       []string `json:"uuids"`
	Description string   `json:"description"`
	Email       string   `json:"email"`
}

// SourcesEqual reports whether two source result lists are structurally
// equal: same sources, same entities, same values, same annotations. The
// comparison goes through the canonical JSON encoding so that payloads
// decoded from different origins (request body vs. stored record) compare
// field by field rather than by in-memory representation.
func SourcesEqual(a, b []*SourceResult) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
