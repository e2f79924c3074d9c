package entity

import (
	"bytes"
	"encoding/json"
)

// Text is a JSON value read as text. Strings are kept as they are; any other
// value keeps its compact JSON encoding, so a model answering with a number
// or an object where prose was asked for does not fail decoding.
type Text string

// UnmarshalJSON implements json.Unmarshaler
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	*t = Text(buf.String())
	return nil
}

// Object is a free-form JSON object returned by a model
type Object map[string]json.RawMessage

// Lookup follows path through nested objects. It returns nil when a key is
// missing or an intermediate value is not an object.
func (o Object) Lookup(path ...string) json.RawMessage {
	if len(path) == 0 || o == nil {
		return nil
	}

	raw, ok := o[path[0]]
	if !ok || isNull(raw) {
		return nil
	}
	if len(path) == 1 {
		return raw
	}

	var next Object
	if err := json.Unmarshal(raw, &next); err != nil {
		return nil
	}
	return next.Lookup(path[1:]...)
}

// Text returns the value at path as text, or "" when it is absent
func (o Object) Text(path ...string) string {
	raw := o.Lookup(path...)
	if raw == nil {
		return ""
	}
	var t Text
	if err := json.Unmarshal(raw, &t); err != nil {
		return ""
	}
	return string(t)
}

// IsString reports whether the value at path is a JSON string
func (o Object) IsString(path ...string) bool {
	raw := bytes.TrimSpace(o.Lookup(path...))
	return len(raw) > 0 && raw[0] == '"'
}

// Objects returns the objects of the array at path. Elements that are not
// objects are skipped.
func (o Object) Objects(path ...string) []Object {
	raw := o.Lookup(path...)
	if raw == nil {
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}

	out := make([]Object, 0, len(elems))
	for _, e := range elems {
		var obj Object
		if err := json.Unmarshal(e, &obj); err != nil || obj == nil {
			continue
		}
		out = append(out, obj)
	}
	return out
}

// With returns a copy of o with key set to the JSON encoding of v
func (o Object) With(key string, v any) Object {
	out := make(Object, len(o)+1)
	for k, raw := range o {
		out[k] = raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		return out
	}
	out[key] = data
	return out
}

// RawOr returns the value at path, or the encoding of fallback when absent
func (o Object) RawOr(fallback any, path ...string) json.RawMessage {
	if raw := o.Lookup(path...); raw != nil {
		return raw
	}
	data, _ := json.Marshal(fallback)
	return data
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
