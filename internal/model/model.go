package model

import "time"

// Period says which part of the lunar day an observance covers.
type Period string

const (
	// PeriodDay covers dawn (Fajr) to dusk (Maghrib) of the civil date.
	PeriodDay Period = "day"
	// PeriodNight covers the night preceding the civil date. Lunar days
	// begin at sunset, so the 15th night ends at dawn of the 15th day.
	PeriodNight Period = "night"
	// PeriodDayAndNight covers the full civil day.
	PeriodDayAndNight Period = "day_and_night"
)

// RuleKind discriminates how a rule is expanded into events.
type RuleKind string

const (
	KindSpecific     RuleKind = "specific"
	KindRange        RuleKind = "range"
	KindMonthAll     RuleKind = "month_all"
	KindMonthAnyTime RuleKind = "month_any_time"
	KindWeekday      RuleKind = "weekday"
	KindWeekdayMulti RuleKind = "weekday_multi"
	KindNightGeneral RuleKind = "night_general"
	KindUnspecified  RuleKind = "unspecified"
)

// Weekday is the three-letter weekday code used by the rule dataset.
type Weekday string

const (
	Monday    Weekday = "MON"
	Tuesday   Weekday = "TUE"
	Wednesday Weekday = "WED"
	Thursday  Weekday = "THU"
	Friday    Weekday = "FRI"
	Saturday  Weekday = "SAT"
	Sunday    Weekday = "SUN"
)

// Time maps the dataset code onto time.Weekday. Unknown codes return
// ok == false and are ignored by the expander.
func (w Weekday) Time() (time.Weekday, bool) {
	switch w {
	case Monday:
		return time.Monday, true
	case Tuesday:
		return time.Tuesday, true
	case Wednesday:
		return time.Wednesday, true
	case Thursday:
		return time.Thursday, true
	case Friday:
		return time.Friday, true
	case Saturday:
		return time.Saturday, true
	case Sunday:
		return time.Sunday, true
	default:
		return time.Sunday, false
	}
}

// BulletLine is one entry of a flattened bullet list: depth 0 is a top-level
// bullet, depth n+1 nests under the nearest preceding depth-n line.
type BulletLine struct {
	Depth int    `json:"depth"`
	Text  string `json:"text"`
}

// Section is one heading of a rule's structured sub-content. Either Lines or
// Bullets (or both) may be set; the expander passes sections through
// untouched and the presentation layer owns interpretation.
type Section struct {
	Heading string       `json:"heading"`
	Lines   []string     `json:"lines,omitempty"`
	Bullets []BulletLine `json:"bullets,omitempty"`
}

// ObservanceRule is one row of the declarative worship schedule.
type ObservanceRule struct {
	ID string `json:"id"`

	// Month is the lunar month the rule belongs to, normalized for lookup
	// (lowercased, diacritics and punctuation folded away).
	Month string `json:"month"`

	// Label is an optional human title. When empty an ordinal title is
	// generated ("3rd Day", "3rd Night").
	Label string `json:"label,omitempty"`

	Period Period   `json:"period"`
	Kind   RuleKind `json:"kind"`

	// StartDay / EndDay are 1-based lunar day bounds, clamped into the
	// month on expansion. A nil StartDay skips range-like rules entirely;
	// a nil EndDay means "through month end".
	StartDay *int `json:"start_day,omitempty"`
	EndDay   *int `json:"end_day,omitempty"`

	// Weekdays is only meaningful for weekday rule kinds.
	Weekdays []Weekday `json:"weekdays,omitempty"`

	Text     string    `json:"text,omitempty"`
	Sections []Section `json:"sections,omitempty"`
}

// MonthAnchor pins lunar day 1 of a month to a civil calendar date.
// Lunar month lengths come from moon sighting and cannot be computed,
// so both fields are user supplied.
type MonthAnchor struct {
	// Start is the civil date of lunar day 1, at midnight in the active
	// timezone.
	Start time.Time
	// Length is the day count of the month, 29 or 30.
	Length int
}

// ColorTag is the fixed category color of an event, assigned from the source
// rule's kind and period. The hex palette behind each tag is configuration.
type ColorTag string

const (
	ColorMonthWide ColorTag = "month_wide"
	ColorDay       ColorTag = "day"
	ColorNight     ColorTag = "night"
	ColorAllDay    ColorTag = "all_day"
)

// Event is a single concrete calendar entry produced by rule expansion.
// Events are immutable once built; the whole list is regenerated whenever
// rules, anchors, timezone or coordinates change.
type Event struct {
	// ID is the source rule ID plus a suffix disambiguating the occurrence.
	ID string

	Title       string
	Description string
	Sections    []Section

	// Month is the normalized lunar month name; LunarDay is the 1-based day
	// index within it, or 0 for a month-wide event.
	Month    string
	LunarDay int

	AllDay bool

	// Start / End are civil instants in the active timezone. For all-day
	// events End is exclusive (midnight starting the following day).
	Start time.Time
	End   time.Time

	Color ColorTag
}
