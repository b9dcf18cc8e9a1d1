package route

import (
	"log/slog"
)

// AbsentMarker is logged in place of a value when the observed field is unset.
const AbsentMarker = "<absent>"

// LogEntry is what the observer recorded for one payload.
type LogEntry struct {
	Seq     int64  `json:"seq"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Present bool   `json:"present"`
}

// Observer logs one named field of each payload.
type Observer struct {
	field  string
	logger *slog.Logger
}

func NewObserver(field string, logger *slog.Logger) *Observer {
	return &Observer{field: field, logger: logger}
}

// Field returns the observed field name.
func (o *Observer) Field() string {
	return o.field
}

// Observe never fails: a nil payload or an unset field yields AbsentMarker.
func (o *Observer) Observe(p *Payload) LogEntry {
	entry := LogEntry{Field: o.field, Value: AbsentMarker}
	if p != nil {
		entry.Seq = p.Seq
	}

	if v, ok := p.Field(o.field); ok {
		entry.Value = v
		entry.Present = true
		o.logger.Info(v, "field", o.field, "seq", entry.Seq)
		return entry
	}

	o.logger.Warn(AbsentMarker, "field", o.field, "seq", entry.Seq, "available", p.FieldNames())
	return entry
}
