package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StormShape records which upstream layout a storm payload arrived in.
type StormShape string

const (
	ShapeList         StormShape = "list"          // bare JSON array
	ShapeStorms       StormShape = "storms"        // {"storms": [...]}
	ShapeActiveStorms StormShape = "active_storms" // {"activeStorms": [...]}
)

// StormsPayload is the canonical form every storm layout folds into.
type StormsPayload struct {
	Shape  StormShape       `json:"-"`
	Storms []StormCandidate `json:"storms" validate:"dive"`
}

// StormCandidate is one storm after field-name variants have been folded.
// Lat and Lon are nil when the upstream value was missing or unparseable.
type StormCandidate struct {
	ID       string   `json:"id" validate:"required"`
	Name     string   `json:"name" validate:"required"`
	Basin    string   `json:"basin" validate:"required"`
	Advisory string   `json:"advisory"`
	Status   string   `json:"status"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
}

const (
	defaultStormName  = "Storm"
	defaultStormBasin = "ATL/EPAC"
)

// DecodeStorms normalizes whichever layout the storm feed used, then
// validates the canonical form.
func DecodeStorms(raw []byte) (StormsPayload, error) {
	const source = "storms"

	entries, shape, err := classifyStorms(source, raw)
	if err != nil {
		return StormsPayload{}, err
	}

	out := StormsPayload{Shape: shape, Storms: make([]StormCandidate, 0, len(entries))}
	for i, e := range entries {
		if e == nil {
			return StormsPayload{}, &SchemaViolation{Source: source, Path: fmt.Sprintf("storms[%d]", i), Rule: "required"}
		}
		out.Storms = append(out.Storms, foldStorm(i, e))
	}
	if err := check(source, out); err != nil {
		return StormsPayload{}, err
	}
	return out, nil
}

func classifyStorms(source string, raw []byte) ([]map[string]json.RawMessage, StormShape, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, "", &SchemaViolation{Source: source, Path: "$", Rule: "required"}
	}

	switch trimmed[0] {
	case '[':
		var list []map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, "", fromJSONError(source, err)
		}
		return list, ShapeList, nil
	case '{':
		var wrapped struct {
			Storms       []map[string]json.RawMessage `json:"storms"`
			ActiveStorms []map[string]json.RawMessage `json:"activeStorms"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, "", fromJSONError(source, err)
		}
		switch {
		case wrapped.Storms != nil:
			return wrapped.Storms, ShapeStorms, nil
		case wrapped.ActiveStorms != nil:
			return wrapped.ActiveStorms, ShapeActiveStorms, nil
		}
		return nil, "", &SchemaViolation{Source: source, Path: "storms", Rule: "required"}
	default:
		return nil, "", &SchemaViolation{Source: source, Path: "$", Rule: "syntax"}
	}
}

func foldStorm(index int, e map[string]json.RawMessage) StormCandidate {
	c := StormCandidate{
		ID:       firstString(e, "id"),
		Name:     firstString(e, "name", "stormName"),
		Basin:    firstString(e, "basin", "basinId"),
		Advisory: firstString(e, "advisory", "advisoryNumber"),
		Status:   firstString(e, "status", "stormType", "classification"),
		Lat:      firstCoordinate(e, 90, "lat", "latitudeNumeric", "latitude"),
		Lon:      firstCoordinate(e, 180, "lon", "longitudeNumeric", "longitude"),
	}
	if c.ID == "" {
		c.ID = strconv.Itoa(index)
	}
	if c.Name == "" {
		c.Name = defaultStormName
	}
	if c.Basin == "" {
		c.Basin = defaultStormBasin
	}
	return c
}

// firstString returns the first key holding a non-empty string or number.
func firstString(e map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := e[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

// firstCoordinate returns the first key holding a number, a numeric string,
// or a hemisphere-suffixed string such as "25.1N" or "80.2W".
// firstCoordinate returns the first key holding a finite value within
// [-limit, limit]. Anything else is treated as absent, never as 0.
func firstCoordinate(e map[string]json.RawMessage, limit float64, keys ...string) *float64 {
	for _, k := range keys {
		raw, ok := e[k]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				continue
			}
			if v, ok = parseCoordinate(s); !ok {
				continue
			}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > limit {
			continue
		}
		return &v
	}
	return nil
}

func parseCoordinate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	sign := 1.0
	switch s[len(s)-1] {
	case 'N', 'n', 'E', 'e':
		s = s[:len(s)-1]
	case 'S', 's', 'W', 'w':
		s = s[:len(s)-1]
		sign = -1
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return sign * v, true
}
