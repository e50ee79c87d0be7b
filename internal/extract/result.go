package extract

import (
	"encoding/json"
	"fmt"
)

// Output is what one extraction call hands back to the invoker.
type Output interface {
	json.Marshaler
	// Empty reports whether there is nothing worth exporting.
	Empty() bool
}

// Result maps table keys to their records in discovery order.
type Result struct {
	keys   []string
	tables map[string][]Record
}

// NewResult returns an empty Result.
func NewResult() *Result {
	return &Result{tables: make(map[string][]Record)}
}

// Set stores rows under key. A repeated key keeps its first position and
// takes the latest rows.
func (r *Result) Set(key string, rows []Record) {
	if r.tables == nil {
		r.tables = make(map[string][]Record)
	}
	if _, ok := r.tables[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.tables[key] = rows
}

// Get returns the rows stored under key.
func (r *Result) Get(key string) ([]Record, bool) {
	rows, ok := r.tables[key]
	return rows, ok
}

// Keys returns table keys in discovery order.
func (r *Result) Keys() []string { return append([]string(nil), r.keys...) }

// Len returns the number of tables.
func (r *Result) Len() int { return len(r.keys) }

// Empty reports whether no table produced rows.
func (r *Result) Empty() bool { return r == nil || len(r.keys) == 0 }

// RowCount sums the rows of every table.
func (r *Result) RowCount() int {
	total := 0
	for _, k := range r.keys {
		total += len(r.tables[k])
	}
	return total
}

// Equal compares two results structurally, including order.
func (r *Result) Equal(o *Result) bool {
	if r == nil || o == nil {
		return r == o
	}
	if len(r.keys) != len(o.keys) {
		return false
	}
	for i, k := range r.keys {
		if o.keys[i] != k {
			return false
		}
		a, b := r.tables[k], o.tables[k]
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if !recordsEqual(a[j], b[j]) {
				return false
			}
		}
	}
	return true
}

func recordsEqual(a, b Record) bool {
	if !a.Fields.Equal(b.Fields) {
		return false
	}
	if (a.PopupDetails == nil) != (b.PopupDetails == nil) {
		return false
	}
	return a.PopupDetails == nil || a.PopupDetails.Equal(*b.PopupDetails)
}

func (r *Result) MarshalJSON() ([]byte, error) {
	var w objectWriter
	if r != nil {
		for _, k := range r.keys {
			if err := w.field(k, r.tables[k]); err != nil {
				return nil, err
			}
		}
	}
	return w.bytes(), nil
}

func (r *Result) UnmarshalJSON(data []byte) error {
	*r = Result{tables: make(map[string][]Record)}
	return readObject(data, func(key string, raw json.RawMessage) error {
		var rows []Record
		if err := json.Unmarshal(raw, &rows); err != nil {
			return fmt.Errorf("table %q: %w", key, err)
		}
		r.Set(key, rows)
		return nil
	})
}
