package history

import "time"

// Kind identifies how a stored value is parsed back into a Go value.
type Kind string

// Stored value kinds.
const (
	KindInt    Kind = "int"
	KindUint   Kind = "uint"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindString Kind = "string"
	KindBytes  Kind = "bytes"
)

// Entry is one recorded property value.
type Entry struct {
	// ID is the auto-incremented primary key.
	ID int64 `json:"id"`

	ThingID string `json:"thing_id"`
	Name    string `json:"name"`

	// Value is int64, uint64, float64, bool, string or []byte.
	Value any `json:"value"`

	// RecordedAt is the record's own timestamp, or the time it was stored
	// when the record carried none.
	RecordedAt time.Time `json:"recorded_at"`
}

// Query selects history entries.
type Query struct {
	ThingID string

	// Name restricts results to one property. Empty returns every property.
	Name string

	// Since, when non-zero, excludes entries recorded before it.
	Since time.Time

	// Limit caps the result (default 50, max 1000).
	Limit int
}
