package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Fields is an insertion-ordered string mapping. The zero value is ready to use.
type Fields struct {
	keys   []string
	values map[string]string
}

// Set stores value under key. An existing key keeps its position.
func (f *Fields) Set(key, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// SetIfAbsent stores value only when key is not yet present and reports
// whether it did.
func (f *Fields) SetIfAbsent(key, value string) bool {
	if _, ok := f.values[key]; ok {
		return false
	}
	f.Set(key, value)
	return true
}

// Get returns the value stored under key.
func (f Fields) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (f Fields) Keys() []string { return append([]string(nil), f.keys...) }

// Len returns the number of keys.
func (f Fields) Len() int { return len(f.keys) }

// Blank reports whether every value is empty after trimming.
func (f Fields) Blank() bool {
	for _, k := range f.keys {
		if strings.TrimSpace(f.values[k]) != "" {
			return false
		}
	}
	return true
}

// Equal compares keys, order and values.
func (f Fields) Equal(o Fields) bool {
	if len(f.keys) != len(o.keys) {
		return false
	}
	for i, k := range f.keys {
		if o.keys[i] != k || o.values[k] != f.values[k] {
			return false
		}
	}
	return true
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var w objectWriter
	for _, k := range f.keys {
		if err := w.field(k, f.values[k]); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	*f = Fields{}
	return readObject(data, func(key string, raw json.RawMessage) error {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		f.Set(key, v)
		return nil
	})
}

// PopupDetailsKey is the record key under which expanded row popups are stored.
const PopupDetailsKey = "popup_details"

// Record is one flattened row. PopupDetails is set only for rows whose
// detail dialog was expanded and yielded data.
type Record struct {
	Fields       Fields
	PopupDetails *Fields
}

// Blank reports whether the record carries no data at all.
func (r Record) Blank() bool {
	return r.Fields.Blank() && r.PopupDetails == nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	var w objectWriter
	for _, k := range r.Fields.keys {
		if err := w.field(k, r.Fields.values[k]); err != nil {
			return nil, err
		}
	}
	if r.PopupDetails != nil {
		if err := w.field(PopupDetailsKey, *r.PopupDetails); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	*r = Record{}
	return readObject(data, func(key string, raw json.RawMessage) error {
		trimmed := bytes.TrimSpace(raw)
		if key == PopupDetailsKey && len(trimmed) > 0 && trimmed[0] == '{' {
			var details Fields
			if err := json.Unmarshal(raw, &details); err != nil {
				return fmt.Errorf("%s: %w", PopupDetailsKey, err)
			}
			r.PopupDetails = &details
			return nil
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		r.Fields.Set(key, v)
		return nil
	})
}

// objectWriter emits a JSON object with keys in call order and without
// HTML escaping, leaving escaping policy to the outer encoder.
type objectWriter struct {
	buf bytes.Buffer
	n   int
}

func (w *objectWriter) field(key string, value any) error {
	if w.n == 0 {
		w.buf.WriteByte('{')
	} else {
		w.buf.WriteByte(',')
	}
	w.n++
	k, err := marshalRaw(key)
	if err != nil {
		return err
	}
	v, err := marshalRaw(value)
	if err != nil {
		return err
	}
	w.buf.Write(k)
	w.buf.WriteByte(':')
	w.buf.Write(v)
	return nil
}

func (w *objectWriter) bytes() []byte {
	if w.n == 0 {
		return []byte("{}")
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes()
}

func marshalRaw(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

// readObject walks a JSON object in document order.
func readObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("value for %q: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
