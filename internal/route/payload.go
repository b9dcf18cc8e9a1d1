package route

import (
	"maps"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payload is the record built for one tick and handed to the observer.
// It belongs to the tick that created it.
type Payload struct {
	ID        uuid.UUID         `json:"id"`
	Seq       int64             `json:"seq"`
	CreatedAt time.Time         `json:"created_at"`
	Fields    map[string]string `json:"fields"`
}

// Field returns the named field and whether it is set. A nil payload has no fields.
func (p *Payload) Field(name string) (string, bool) {
	if p == nil || p.Fields == nil {
		return "", false
	}
	v, ok := p.Fields[name]
	return v, ok
}

// FieldNames returns the set field names, sorted.
func (p *Payload) FieldNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Fields))
	for name := range p.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PayloadFactory builds payloads from field templates.
// Templates may reference {seq}, {id} and {at} (RFC 3339, UTC).
type PayloadFactory struct {
	templates map[string]string
	now       func() time.Time
	newID     func() uuid.UUID
}

// NewPayloadFactory copies templates; later changes to the map are not seen.
func NewPayloadFactory(templates map[string]string) *PayloadFactory {
	return &PayloadFactory{
		templates: maps.Clone(templates),
		now:       time.Now,
		newID:     uuid.New,
	}
}

// New builds a fresh payload for seq.
func (f *PayloadFactory) New(seq int64) *Payload {
	p := &Payload{
		ID:        f.newID(),
		Seq:       seq,
		CreatedAt: f.now().UTC(),
		Fields:    make(map[string]string, len(f.templates)),
	}

	r := strings.NewReplacer(
		"{seq}", strconv.FormatInt(seq, 10),
		"{id}", p.ID.String(),
		"{at}", p.CreatedAt.Format(time.RFC3339Nano),
	)
	for name, tmpl := range f.templates {
		p.Fields[name] = r.Replace(tmpl)
	}
	return p
}
