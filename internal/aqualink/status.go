package aqualink

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// The vendor reports device state as loosely-typed values: string "1"/"0",
// bare numbers, "on"/"off", nested {state: ...} objects. Normalization
// collapses all of that into the canonical Snapshot.

// Normalize builds a Snapshot from the raw get_home payload, optionally
// enriched by the per-circuit get_devices payload. The per-circuit state for
// the configured jet-pump circuit is treated as more authoritative than the
// home-screen value; a disagreement is logged since it usually means the
// circuit mapping is wrong.
func Normalize(home, circuits map[string]any, jetPumpDevice string, now time.Time) *Snapshot {
	flat := flattenScreen(screenItems(home, "home_screen"))

	snap := &Snapshot{
		AirTemp:     intField(flat["air_temp"]),
		SpaTemp:     intField(flat["spa_temp"]),
		PoolTemp:    intField(flat["pool_temp"]),
		SpaSetPoint: intField(flat["spa_set_point"]),
		SpaMode:     truthyOn(flat["spa_pump"]),
		SpaHeater:   heaterOn(flat["spa_heater"]),
		FilterPump:  truthyOn(flat["pool_pump"]),
		Connected:   isOnline(flat["status"]),
		LastUpdate:  now,
	}

	for key, val := range flat {
		if strings.HasPrefix(normalizeKey(key), "aux") {
			if snap.Aux == nil {
				snap.Aux = make(map[string]bool)
			}
			snap.Aux[key] = truthyOn(val)
		}
	}

	jetState, jetFound := lookupNormalized(flat, jetPumpDevice)
	if jetFound {
		snap.JetPump = truthyOn(jetState)
	}

	if circuits != nil {
		circuitFlat := flattenScreen(screenItems(circuits, "devices_screen"))
		if state, ok := lookupNormalized(circuitFlat, jetPumpDevice); ok {
			override := truthyOn(state)
			if jetFound && override != snap.JetPump {
				log.Printf("jet-pump circuit %q disagrees: home_screen=%v devices_screen=%v; using devices_screen",
					jetPumpDevice, snap.JetPump, override)
			}
			snap.JetPump = override
		}
	}

	return snap
}

// screenItems extracts the named screen array from a payload. When the key
// is absent the payload itself is treated as an already-flat record, which
// keeps the normalizer usable against both vendor API generations.
func screenItems(payload map[string]any, key string) any {
	if payload == nil {
		return nil
	}
	if items, ok := payload[key]; ok {
		return items
	}
	return payload
}

// flattenScreen collapses the vendor's array-of-single-key-objects shape
// into one map keyed by device identifier, resolving nested {state: ...}
// records to their state value.
func flattenScreen(items any) map[string]any {
	out := make(map[string]any)
	switch v := items.(type) {
	case []any:
		for _, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for key, val := range entry {
				out[key] = scalarState(val)
			}
		}
	case map[string]any:
		for key, val := range v {
			out[key] = scalarState(val)
		}
	}
	return out
}

func scalarState(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if state, ok := t["state"]; ok {
			return state
		}
		return nil
	case []any:
		// Per-circuit records nest attributes as single-key maps
		// ({label: ...}, {state: ...}, ...).
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if state, ok := m["state"]; ok {
					return state
				}
			}
		}
		return nil
	default:
		return v
	}
}

// truthyOn reports whether a loosely-typed vendor value means "on":
// "1", 1, "on" or true, case-insensitively.
func truthyOn(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		return s == "1" || strings.EqualFold(s, "on") || strings.EqualFold(s, "true")
	case float64:
		return t == 1
	case int:
		return t == 1
	case json.Number:
		n, err := t.Float64()
		return err == nil && n == 1
	}
	return false
}

// heaterOn extends truthyOn for the heater, which reports a multi-valued
// state (1 = enabled, 3 = actively heating). Any nonzero numeric counts as on.
func heaterOn(v any) bool {
	if truthyOn(v) {
		return true
	}
	if n := intField(v); n != nil {
		return *n != 0
	}
	return false
}

func isOnline(v any) bool {
	s, ok := v.(string)
	return ok && strings.EqualFold(strings.TrimSpace(s), "online")
}

// intField parses a loosely-typed numeric value. Unparsable or absent
// values yield nil, never zero.
func intField(v any) *int {
	switch t := v.(type) {
	case float64:
		n := int(t)
		return &n
	case int:
		n := t
		return &n
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil
		}
		n := int(f)
		return &n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		n := int(f)
		return &n
	}
	return nil
}

// normalizeKey strips non-alphanumerics and case-folds, so "Aux 4", "AUX_4"
// and "aux_4" all match.
func normalizeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// lookupNormalized finds a flattened entry by normalized key match.
func lookupNormalized(flat map[string]any, key string) (any, bool) {
	want := normalizeKey(key)
	for k, v := range flat {
		if normalizeKey(k) == want {
			return v, true
		}
	}
	return nil, false
}
