package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Payload is the flat untyped shape of an entity as it is stored locally
// and sent over the wire. It is only ever read through the helpers below,
// which copy a field when it is present, non-null and coercible.
type Payload map[string]any

// Clone returns a shallow copy of the payload
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// DecodePayload parses JSON bytes into a Payload.
// Numbers are kept as json.Number so that integer fields survive without float rounding.
func DecodePayload(data []byte) (Payload, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

func (p Payload) readString(field string, dst *string) {
	v, ok := p[field]
	if !ok || v == nil {
		return
	}
	switch t := v.(type) {
	case string:
		*dst = t
	case json.Number:
		*dst = t.String()
	case float64:
		*dst = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		*dst = strconv.Itoa(t)
	case int64:
		*dst = strconv.FormatInt(t, 10)
	case bool:
		*dst = strconv.FormatBool(t)
	}
}

func (p Payload) readInt(field string, dst *int64) {
	v, ok := p[field]
	if !ok || v == nil {
		return
	}
	switch t := v.(type) {
	case int:
		*dst = int64(t)
	case int64:
		*dst = t
	case float64:
		if !math.IsNaN(t) && !math.IsInf(t, 0) {
			*dst = int64(t)
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			*dst = i
		} else if f, err := t.Float64(); err == nil {
			*dst = int64(f)
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			*dst = i
		}
	case bool:
		if t {
			*dst = 1
		} else {
			*dst = 0
		}
	}
}

func (p Payload) readFloat(field string, dst *float64) {
	v, ok := p[field]
	if !ok || v == nil {
		return
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return
		}
		f = parsed
	default:
		return
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return
	}
	*dst = f
}

func (p Payload) readBool(field string, dst *bool) {
	v, ok := p[field]
	if !ok || v == nil {
		return
	}
	switch t := v.(type) {
	case bool:
		*dst = t
	case int:
		*dst = t != 0
	case int64:
		*dst = t != 0
	case float64:
		*dst = t != 0
	case json.Number:
		if f, err := t.Float64(); err == nil {
			*dst = f != 0
		}
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			*dst = b
		}
	}
}

// readEnum copies a string field only if it is one of allowed
func (p Payload) readEnum(field string, dst *string, allowed ...string) {
	var s string
	if v, ok := p[field]; !ok || v == nil {
		return
	}
	p.readString(field, &s)
	for _, a := range allowed {
		if s == a {
			*dst = s
			return
		}
	}
}
