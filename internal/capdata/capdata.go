// Package capdata decodes the marshalled values Agoric publishes to vstorage.
//
// A published value is a JSON object {"body": string, "slots": [boardID...]}.
// Two body encodings are in use on chain:
//   - legacy: plain JSON with {"@qclass": ...} objects for non-JSON values
//   - smallcaps: "#"-prefixed JSON where strings carry a one-character type prefix
//
// Decoded values are plain Go values: map[string]any, []any, string, bool, nil,
// json.Number, *big.Int (bigints), float64 (NaN/±Inf), Slot (remotables and
// promises) and Tagged.
package capdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Slot is a reference to an object that lives on chain, e.g. a brand or an instance.
type Slot struct {
	Index   int    // Position in the capdata slots array
	BoardID string // Board id the slot resolves to ("" when slots are absent)
	Iface   string // Alleged interface, e.g. "Alleged: BLD brand"
}

// Tagged is a tagged passable such as a copySet or copyBag.
type Tagged struct {
	Tag     string
	Payload any
}

// Undefined is the decoded form of a JavaScript undefined.
type Undefined struct{}

// CapData is the wire shape of one marshalled value.
type CapData struct {
	Body  string   `json:"body"`
	Slots []string `json:"slots"`
}

// Error reports a body that does not follow either encoding.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capdata: %s: %v", e.Reason, e.Err)
	}
	return "capdata: " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Unmarshal decodes a capdata JSON document.
func Unmarshal(data []byte) (any, error) {
	var cd CapData
	if err := json.Unmarshal(data, &cd); err != nil {
		return nil, &Error{Reason: "parse capdata envelope", Err: err}
	}
	if cd.Body == "" {
		return nil, &Error{Reason: "empty body"}
	}
	return UnmarshalBody(cd.Body, cd.Slots)
}

// UnmarshalBody decodes a body string against its slots.
func UnmarshalBody(body string, slots []string) (any, error) {
	smallcaps := strings.HasPrefix(body, "#")
	if smallcaps {
		body = body[1:]
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &Error{Reason: "parse body", Err: err}
	}

	d := decoder{slots: slots}
	if smallcaps {
		return d.smallcaps(raw)
	}
	return d.legacy(raw)
}

type decoder struct {
	slots []string
}

func (d decoder) slot(index int, iface string) (Slot, error) {
	s := Slot{Index: index, Iface: iface}
	if d.slots == nil {
		return s, nil
	}
	if index < 0 || index >= len(d.slots) {
		return Slot{}, &Error{Reason: fmt.Sprintf("slot index %d out of range (%d slots)", index, len(d.slots))}
	}
	s.BoardID = d.slots[index]
	return s, nil
}

// -----------------------------------------------------------------------------
// Legacy encoding
// -----------------------------------------------------------------------------

func (d decoder) legacy(v any) (any, error) {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			dv, err := d.legacy(elem)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil

	case map[string]any:
		qclass, ok := val["@qclass"].(string)
		if !ok {
			out := make(map[string]any, len(val))
			for k, elem := range val {
				dv, err := d.legacy(elem)
				if err != nil {
					return nil, err
				}
				out[k] = dv
			}
			return out, nil
		}
		return d.legacyQClass(qclass, val)

	default:
		return val, nil
	}
}

func (d decoder) legacyQClass(qclass string, val map[string]any) (any, error) {
	switch qclass {
	case "undefined":
		return Undefined{}, nil
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	case "bigint":
		digits, _ := val["digits"].(string)
		n, ok := new(big.Int).SetString(digits, 10)
		if !ok {
			return nil, &Error{Reason: fmt.Sprintf("bad bigint digits %q", digits)}
		}
		return n, nil
	case "slot":
		index, err := jsonInt(val["index"])
		if err != nil {
			return nil, &Error{Reason: "bad slot index", Err: err}
		}
		iface, _ := val["iface"].(string)
		return d.slot(index, iface)
	case "tagged":
		tag, _ := val["tag"].(string)
		payload, err := d.legacy(val["payload"])
		if err != nil {
			return nil, err
		}
		return Tagged{Tag: tag, Payload: payload}, nil
	case "hilbert":
		out := map[string]any{}
		if rest, ok := val["rest"]; ok {
			dv, err := d.legacy(rest)
			if err != nil {
				return nil, err
			}
			if m, ok := dv.(map[string]any); ok {
				out = m
			}
		}
		if original, ok := val["original"]; ok {
			dv, err := d.legacy(original)
			if err != nil {
				return nil, err
			}
			out["@qclass"] = dv
		}
		return out, nil
	case "error":
		msg, _ := val["message"].(string)
		return map[string]any{"error": msg}, nil
	default:
		return nil, &Error{Reason: fmt.Sprintf("unsupported @qclass %q", qclass)}
	}
}

// -----------------------------------------------------------------------------
// Smallcaps encoding
// -----------------------------------------------------------------------------

func (d decoder) smallcaps(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return d.smallcapsString(val)

	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			dv, err := d.smallcaps(elem)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil

	case map[string]any:
		if tag, ok := val["#tag"].(string); ok {
			payload, err := d.smallcaps(val["payload"])
			if err != nil {
				return nil, err
			}
			return Tagged{Tag: tag, Payload: payload}, nil
		}
		if msg, ok := val["#error"].(string); ok {
			return map[string]any{"error": msg}, nil
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			dv, err := d.smallcaps(elem)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil

	default:
		return val, nil
	}
}

func (d decoder) smallcapsString(s string) (any, error) {
	if s == "" {
		return s, nil
	}

	switch s[0] {
	case '!':
		return s[1:], nil
	case '+', '-':
		n, ok := new(big.Int).SetString(s[1:], 10)
		if !ok {
			return nil, &Error{Reason: fmt.Sprintf("bad bigint %q", s)}
		}
		if s[0] == '-' {
			n.Neg(n)
		}
		return n, nil
	case '$', '&':
		ref := s[1:]
		idx, iface, _ := strings.Cut(ref, ".")
		index, err := strconv.Atoi(idx)
		if err != nil {
			return nil, &Error{Reason: fmt.Sprintf("bad slot reference %q", s), Err: err}
		}
		return d.slot(index, iface)
	case '#':
		switch s {
		case "#undefined":
			return Undefined{}, nil
		case "#NaN":
			return math.NaN(), nil
		case "#Infinity":
			return math.Inf(1), nil
		case "#-Infinity":
			return math.Inf(-1), nil
		case "#-0":
			return math.Copysign(0, -1), nil
		}
		return nil, &Error{Reason: fmt.Sprintf("unsupported special %q", s)}
	case '%':
		return s, nil
	default:
		return s, nil
	}
}

func jsonInt(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
