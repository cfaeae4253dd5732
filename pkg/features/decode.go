package features

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

type envelope struct {
	Data []rawFeature `json:"data"`
}

type rawFeature struct {
	Feature    string                `json:"feature"`
	IsEnabled  *bool                 `json:"isEnabled"`
	Properties map[string]rawProp    `json:"properties"`
	Commands   map[string]rawCommand `json:"commands"`
}

type rawProp struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
	Unit  string          `json:"unit"`
}

type rawCommand struct {
	URI          string                     `json:"uri"`
	IsExecutable bool                       `json:"isExecutable"`
	Params       map[string]json.RawMessage `json:"params"`
}

const dateLayout = "2006-01-02"

var summaryStats = map[string]Stat{
	"currentDay":    CurrentDay,
	"currentWeek":   CurrentWeek,
	"currentMonth":  CurrentMonth,
	"currentYear":   CurrentYear,
	"lastSevenDays": LastSevenDays,
	"lastDay":       PreviousDay,
	"lastWeek":      PreviousWeek,
	"lastMonth":     PreviousMonth,
	"lastYear":      PreviousYear,
}

var arrayStats = map[string][2]Stat{
	"day":   {CurrentDay, PreviousDay},
	"week":  {CurrentWeek, PreviousWeek},
	"month": {CurrentMonth, PreviousMonth},
	"year":  {CurrentYear, PreviousYear},
}

// Decode parses a features response body. Disabled features and features
// whose properties match no known shape are skipped.
func Decode(body []byte) ([]Feature, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}

	out := make([]Feature, 0, len(env.Data))
	for _, raw := range env.Data {
		if raw.IsEnabled != nil && !*raw.IsEnabled {
			continue
		}
		f, err := classify(raw)
		if err != nil {
			return nil, fmt.Errorf("decode feature %s: %w", raw.Feature, err)
		}
		if f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}

func classify(raw rawFeature) (Feature, error) {
	b := base{Name: raw.Feature, Commands: commands(raw.Commands)}
	props := raw.Properties

	if slope, ok := number(props, "slope"); ok {
		if shift, ok := number(props, "shift"); ok {
			return &Curve{base: b, Slope: slope, Shift: shift}, nil
		}
	}

	if _, hasStart := props["start"]; hasStart {
		if _, hasEnd := props["end"]; hasEnd {
			return datePeriod(b, props)
		}
	}

	if stats := consumptionStats(props); len(stats) > 0 {
		return &Consumption{base: b, Stats: stats}, nil
	}

	if v, ok := number(props, "value"); ok {
		f := &NumericSensor{base: b, Value: v}
		f.Status, _ = str(props, "status")
		if active, ok := boolean(props, "active"); ok {
			f.Active = &active
		}
		return f, nil
	}

	if s, ok := str(props, "value"); ok {
		return &Text{base: b, Value: s}, nil
	}

	values := make(map[string]Value)
	for name := range props {
		if v, ok := number(props, name); ok {
			values[name] = v
		}
	}
	if len(values) > 0 {
		return &MultiValue{base: b, Values: values}, nil
	}

	status, hasStatus := str(props, "status")
	active, hasActive := boolean(props, "active")
	if hasStatus || hasActive {
		f := &StatusSensor{base: b, Status: status}
		if hasActive {
			f.Active = &active
		}
		return f, nil
	}

	return nil, nil
}

func datePeriod(b base, props map[string]rawProp) (Feature, error) {
	f := &DatePeriod{base: b}
	f.Active, _ = boolean(props, "active")
	for name, dst := range map[string]**time.Time{"start": &f.Start, "end": &f.End} {
		s, ok := str(props, name)
		if !ok || s == "" {
			continue
		}
		t, err := time.ParseInLocation(dateLayout, s[:min(len(s), len(dateLayout))], time.Local)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		*dst = &t
	}
	return f, nil
}

func consumptionStats(props map[string]rawProp) map[Stat]Value {
	stats := make(map[Stat]Value)
	for name, stat := range summaryStats {
		if v, ok := number(props, name); ok {
			stats[stat] = v
		}
	}
	for name, pair := range arrayStats {
		p, ok := props[name]
		if !ok || p.Type != "array" {
			continue
		}
		var values []float64
		if err := json.Unmarshal(p.Value, &values); err != nil {
			continue
		}
		for i, stat := range pair {
			if i < len(values) {
				stats[stat] = Value{Value: values[i], Unit: p.Unit}
			}
		}
	}
	return stats
}

func commands(raw map[string]rawCommand) []Command {
	if len(raw) == 0 {
		return nil
	}
	out := make([]Command, 0, len(raw))
	for name, c := range raw {
		params := make([]string, 0, len(c.Params))
		for p := range c.Params {
			params = append(params, p)
		}
		sort.Strings(params)
		out = append(out, Command{Name: name, URI: c.URI, Executable: c.IsExecutable, Params: params})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func number(props map[string]rawProp, name string) (Value, bool) {
	p, ok := props[name]
	if !ok || p.Type != "number" {
		return Value{}, false
	}
	var v float64
	if err := json.Unmarshal(p.Value, &v); err != nil {
		return Value{}, false
	}
	return Value{Value: v, Unit: p.Unit}, true
}

func str(props map[string]rawProp, name string) (string, bool) {
	p, ok := props[name]
	if !ok || p.Type != "string" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(p.Value, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func boolean(props map[string]rawProp, name string) (bool, bool) {
	p, ok := props[name]
	if !ok || p.Type != "boolean" {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(p.Value, &b); err != nil {
		return false, false
	}
	return b, true
}
