// Package features models the heating provider's device features as a closed
// set of variants and projects them onto channel states.
package features

import "time"

// Feature is one of NumericSensor, MultiValue, StatusSensor, Consumption,
// Curve, DatePeriod or Text. The set is sealed by an unexported method.
type Feature interface {
	FeatureName() string
	FeatureCommands() []Command
	isFeature()
}

// Value is a number with its unit as reported by the provider.
type Value struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Command is an action the provider accepts for a feature.
type Command struct {
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	Executable bool     `json:"executable"`
	Params     []string `json:"params"`
}

type base struct {
	Name     string    `json:"name"`
	Commands []Command `json:"commands,omitempty"`
}

func (b base) FeatureName() string        { return b.Name }
func (b base) FeatureCommands() []Command { return b.Commands }
func (base) isFeature()                   {}

type NumericSensor struct {
	base
	Value  Value  `json:"value"`
	Status string `json:"status,omitempty"`
	Active *bool  `json:"active,omitempty"`
}

type MultiValue struct {
	base
	Values map[string]Value `json:"values"`
}

type StatusSensor struct {
	base
	Status string `json:"status,omitempty"`
	Active *bool  `json:"active,omitempty"`
}

// Stat names a consumption aggregate.
type Stat string

const (
	CurrentDay    Stat = "currentDay"
	CurrentWeek   Stat = "currentWeek"
	CurrentMonth  Stat = "currentMonth"
	CurrentYear   Stat = "currentYear"
	LastSevenDays Stat = "lastSevenDays"
	PreviousDay   Stat = "previousDay"
	PreviousWeek  Stat = "previousWeek"
	PreviousMonth Stat = "previousMonth"
	PreviousYear  Stat = "previousYear"
)

// Stats lists every consumption aggregate in channel order.
var Stats = []Stat{
	CurrentDay, CurrentWeek, CurrentMonth, CurrentYear, LastSevenDays,
	PreviousDay, PreviousWeek, PreviousMonth, PreviousYear,
}

type Consumption struct {
	base
	Stats map[Stat]Value `json:"stats"`
}

type Curve struct {
	base
	Slope Value `json:"slope"`
	Shift Value `json:"shift"`
}

// DatePeriod is a holiday-style schedule. Start and End are calendar dates.
type DatePeriod struct {
	base
	Active bool       `json:"active"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
}

type Text struct {
	base
	Value string `json:"value"`
}

func NewNumericSensor(name string, value Value) *NumericSensor {
	return &NumericSensor{base: base{Name: name}, Value: value}
}

func NewText(name, value string) *Text {
	return &Text{base: base{Name: name}, Value: value}
}
