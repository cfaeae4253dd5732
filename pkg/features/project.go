package features

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// ChannelState is one projected value. Value is a float64, bool, string,
// time.Time, or nil when the provider reports nothing usable.
type ChannelState struct {
	Channel  string      `json:"channel"`
	Feature  string      `json:"feature"`
	Property string      `json:"property,omitempty"`
	Value    interface{} `json:"value"`
}

var uidUnsafe = regexp.MustCompile(`[^\w-]`)

// ChannelID turns a feature name into a channel id segment.
func ChannelID(name string) string {
	return uidUnsafe.ReplaceAllString(name, "_")
}

// Project maps f onto its channel states.
func Project(f Feature) ([]ChannelState, error) {
	switch f := f.(type) {
	case *NumericSensor:
		return projectNumericSensor(f), nil
	case *MultiValue:
		return projectMultiValue(f), nil
	case *StatusSensor:
		return projectStatusSensor(f), nil
	case *Consumption:
		return projectConsumption(f), nil
	case *Curve:
		return projectCurve(f), nil
	case *DatePeriod:
		return projectDatePeriod(f), nil
	case *Text:
		return []ChannelState{state(f, ChannelID(f.Name), "", f.Value)}, nil
	default:
		return nil, fmt.Errorf("unsupported feature type %T", f)
	}
}

// ProjectAll projects every feature and returns the states sorted by channel.
func ProjectAll(fs []Feature) ([]ChannelState, error) {
	states := make([]ChannelState, 0, len(fs))
	for _, f := range fs {
		s, err := Project(f)
		if err != nil {
			return nil, err
		}
		states = append(states, s...)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Channel < states[j].Channel })
	return states, nil
}

func state(f Feature, channel, property string, value interface{}) ChannelState {
	return ChannelState{Channel: channel, Feature: f.FeatureName(), Property: property, Value: value}
}

func projectNumericSensor(f *NumericSensor) []ChannelState {
	id := ChannelID(f.Name)
	states := []ChannelState{state(f, id, "value", f.Value.Value)}
	if f.Status != "" && f.Status != "n/a" {
		states = append(states, state(f, id+"_status", "status", f.Status))
	} else if f.Active != nil {
		states = append(states, state(f, id+"_active", "active", *f.Active))
	}
	return states
}

func projectMultiValue(f *MultiValue) []ChannelState {
	states := make([]ChannelState, 0, len(f.Values))
	for name, v := range f.Values {
		states = append(states, state(f, ChannelID(f.Name+"_"+name), name, v.Value))
	}
	return states
}

func projectStatusSensor(f *StatusSensor) []ChannelState {
	var active interface{}
	if f.Active != nil {
		active = *f.Active
	}
	var status interface{}
	if f.Status != "" {
		status = f.Status
	}
	id := ChannelID(f.Name)
	return []ChannelState{
		state(f, id+"_active", "active", active),
		state(f, id+"_status", "status", status),
	}
}

func projectConsumption(f *Consumption) []ChannelState {
	id := ChannelID(f.Name)
	states := make([]ChannelState, 0, len(f.Stats))
	for _, stat := range Stats {
		if v, ok := f.Stats[stat]; ok {
			states = append(states, state(f, id+"_"+string(stat), string(stat), v.Value))
		}
	}
	return states
}

func projectCurve(f *Curve) []ChannelState {
	id := ChannelID(f.Name)
	return []ChannelState{
		state(f, id+"_slope", "slope", f.Slope.Value),
		state(f, id+"_shift", "shift", f.Shift.Value),
	}
}

func projectDatePeriod(f *DatePeriod) []ChannelState {
	id := ChannelID(f.Name)
	var start, end interface{}
	if f.Start != nil {
		start = *f.Start
	}
	if f.End != nil {
		// the period includes the whole end day
		end = f.End.Add(24*time.Hour - time.Nanosecond)
	}
	return []ChannelState{
		state(f, id+"_active", "active", f.Active),
		state(f, id+"_start", "start", start),
		state(f, id+"_end", "end", end),
	}
}
