package hijri

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "github.com/zakhtar8/aamalcalendar/internal/log"
	"github.com/zakhtar8/aamalcalendar/internal/model"
)

// BoundaryProvider supplies the dawn (Fajr) and dusk (Maghrib) instants of a
// civil date. date is midnight in the active timezone; the returned instants
// carry the same location. Implementations must be deterministic for fixed
// inputs.
type BoundaryProvider interface {
	DayBounds(date time.Time, lat, lon float64) (dawn, dusk time.Time, err error)
}

// ExpandConfig controls how rule expansion is performed.
type ExpandConfig struct {
	// Location is the timezone all event instants are expressed in.
	// If nil, time.Local is used.
	Location *time.Location

	// Latitude / Longitude are the observer coordinates passed to the
	// boundary provider for timed day events.
	Latitude  float64
	Longitude float64

	// Boundaries computes dawn/dusk for timed events. If nil, day-period
	// events degrade to all-day markers.
	Boundaries BoundaryProvider
}

// ExpandResult wraps the deduplicated event list plus the IDs of rules that
// produced no events because they were unconfigured or underspecified.
type ExpandResult struct {
	Events []model.Event

	// SkippedRules records rule IDs that expanded to nothing: no anchor for
	// their month, or a range rule without a start day. Informational only;
	// a partially configured calendar is not an error.
	SkippedRules []string
}

// ExpandSchedule turns declarative observance rules into concrete calendar
// events for every lunar month that has an anchor. It never mutates its
// inputs and has no fatal paths: malformed or unanchored rules simply emit
// nothing. Output order is rule order, then day order, with exact
// (title, start, end) duplicates dropped in favor of the earliest insertion.
func ExpandSchedule(rules []model.ObservanceRule, anchors map[string]model.MonthAnchor, cfg ExpandConfig) ExpandResult {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	var result ExpandResult
	events := make([]model.Event, 0, len(rules))

	for _, rule := range rules {
		anchor, ok := anchors[rule.Month]
		if !ok {
			result.SkippedRules = append(result.SkippedRules, rule.ID)
			continue
		}

		expanded := expandRule(rule, normalizeAnchor(anchor, cfg.Location), cfg)
		if len(expanded) == 0 {
			result.SkippedRules = append(result.SkippedRules, rule.ID)
			continue
		}
		events = append(events, expanded...)
	}

	result.Events = dedupe(events)
	return result
}

// normalizeAnchor pins the anchor's start to midnight in the active timezone.
func normalizeAnchor(a model.MonthAnchor, loc *time.Location) model.MonthAnchor {
	s := a.Start.In(loc)
	a.Start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
	return a
}

// civilDate maps a 1-based lunar day number onto its civil date (midnight in
// the anchor's timezone). This is the sole temporal primitive of expansion.
func civilDate(a model.MonthAnchor, day int) time.Time {
	return a.Start.AddDate(0, 0, day-1)
}

func expandRule(rule model.ObservanceRule, anchor model.MonthAnchor, cfg ExpandConfig) []model.Event {
	switch rule.Kind {
	case model.KindMonthAll, model.KindMonthAnyTime:
		return []model.Event{monthEvent(rule, anchor)}
	case model.KindWeekday, model.KindWeekdayMulti:
		return expandWeekdayRule(rule, anchor, cfg)
	default:
		// specific / range / night_general / unspecified all share the
		// day-range path.
		return expandRangeRule(rule, anchor, cfg)
	}
}

// monthEvent emits the single all-day event spanning the whole lunar month,
// civil-date(1) through civil-date(length+1) exclusive.
func monthEvent(rule model.ObservanceRule, anchor model.MonthAnchor) model.Event {
	title := rule.Label
	if title == "" {
		title = "Throughout the Month"
	}
	return model.Event{
		ID:          rule.ID + "-month",
		Title:       title,
		Description: rule.Text,
		Sections:    rule.Sections,
		Month:       rule.Month,
		AllDay:      true,
		Start:       civilDate(anchor, 1),
		End:         civilDate(anchor, anchor.Length+1),
		Color:       model.ColorMonthWide,
	}
}

// expandWeekdayRule emits one timed (dawn to dusk) event for each lunar day
// whose civil date falls on one of the rule's weekdays. The recurrence over
// the month window is evaluated as a WEEKLY rrule.
func expandWeekdayRule(rule model.ObservanceRule, anchor model.MonthAnchor, cfg ExpandConfig) []model.Event {
	byWeekday := make([]rrule.Weekday, 0, len(rule.Weekdays))
	for _, w := range rule.Weekdays {
		rw, ok := rruleWeekday(w)
		if !ok {
			appLog.Warn("expand: unknown weekday code ignored", "rule", rule.ID, "weekday", string(w))
			continue
		}
		byWeekday = append(byWeekday, rw)
	}
	if len(byWeekday) == 0 {
		return nil
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   civilDate(anchor, 1),
		Until:     civilDate(anchor, anchor.Length),
		Byweekday: byWeekday,
	})
	if err != nil {
		appLog.Error("expand: weekday recurrence construction failed", err, "rule", rule.ID)
		return nil
	}

	var out []model.Event
	for _, t := range r.All() {
		day := dayIndex(anchor, t)
		if day < 1 || day > anchor.Length {
			continue
		}
		out = append(out, dayBoundEvent(rule, anchor, day, cfg))
	}
	return out
}

// dayIndex is the inverse of civilDate: the 1-based lunar day of a civil
// date within the anchored month. Counted by calendar days, not 24h spans,
// so DST transitions cannot skew it.
func dayIndex(anchor model.MonthAnchor, t time.Time) int {
	day := 1
	for cur := anchor.Start; day <= anchor.Length; cur = cur.AddDate(0, 0, 1) {
		if cur.Year() == t.Year() && cur.YearDay() == t.YearDay() {
			return day
		}
		day++
	}
	return 0
}

// expandRangeRule handles the default path shared by specific, range,
// night_general and unspecified rules: resolve the day bounds, then branch
// per day on the rule's period.
func expandRangeRule(rule model.ObservanceRule, anchor model.MonthAnchor, cfg ExpandConfig) []model.Event {
	if rule.StartDay == nil {
		// A range-like rule without a start day cannot be placed.
		return nil
	}

	start := clamp(*rule.StartDay, 1, anchor.Length)
	end := anchor.Length
	if rule.EndDay != nil {
		end = clamp(*rule.EndDay, start, anchor.Length)
	}

	var out []model.Event
	for d := start; d <= end; d++ {
		switch rule.Period {
		case model.PeriodNight:
			out = append(out, nightEvent(rule, anchor, d))
		case model.PeriodDay:
			out = append(out, dayBoundEvent(rule, anchor, d, cfg))
		default:
			// day_and_night and anything unrecognized: whole civil day.
			out = append(out, allDayEvent(rule, anchor, d))
		}
	}
	return out
}

// nightEvent marks the night of lunar day d. The night precedes its calendar
// date, so the event is an all-day marker on civil-date(d) minus one day and
// does not span midnight into civil-date(d).
func nightEvent(rule model.ObservanceRule, anchor model.MonthAnchor, d int) model.Event {
	eve := civilDate(anchor, d).AddDate(0, 0, -1)
	return model.Event{
		ID:          occurrenceID(rule.ID, d),
		Title:       titleFor(rule, d, "Night"),
		Description: rule.Text,
		Sections:    rule.Sections,
		Month:       rule.Month,
		LunarDay:    d,
		AllDay:      true,
		Start:       eve,
		End:         eve.AddDate(0, 0, 1),
		Color:       model.ColorNight,
	}
}

// dayBoundEvent emits a timed event from dawn to dusk of lunar day d. When
// no boundary provider is configured, or the provider cannot produce bounds
// for that date (polar latitudes), the event degrades to an all-day marker.
func dayBoundEvent(rule model.ObservanceRule, anchor model.MonthAnchor, d int, cfg ExpandConfig) model.Event {
	date := civilDate(anchor, d)
	ev := model.Event{
		ID:          occurrenceID(rule.ID, d),
		Title:       titleFor(rule, d, "Day"),
		Description: rule.Text,
		Sections:    rule.Sections,
		Month:       rule.Month,
		LunarDay:    d,
		Color:       model.ColorDay,
	}

	if cfg.Boundaries != nil {
		dawn, dusk, err := cfg.Boundaries.DayBounds(date, cfg.Latitude, cfg.Longitude)
		if err == nil {
			ev.Start = dawn
			ev.End = dusk
			return ev
		}
		appLog.Warn("expand: day boundaries unavailable, falling back to all-day",
			"rule", rule.ID, "date", date.Format("2006-01-02"), "err", err)
	}

	ev.AllDay = true
	ev.Start = date
	ev.End = date.AddDate(0, 0, 1)
	return ev
}

// allDayEvent spans the full civil date of lunar day d.
func allDayEvent(rule model.ObservanceRule, anchor model.MonthAnchor, d int) model.Event {
	date := civilDate(anchor, d)
	return model.Event{
		ID:          occurrenceID(rule.ID, d),
		Title:       titleFor(rule, d, "Day"),
		Description: rule.Text,
		Sections:    rule.Sections,
		Month:       rule.Month,
		LunarDay:    d,
		AllDay:      true,
		Start:       date,
		End:         date.AddDate(0, 0, 1),
		Color:       model.ColorAllDay,
	}
}

func titleFor(rule model.ObservanceRule, day int, noun string) string {
	if rule.Label != "" {
		return rule.Label
	}
	return ordinal(day) + " " + noun
}

func occurrenceID(ruleID string, day int) string {
	return fmt.Sprintf("%s-d%02d", ruleID, day)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// dedupe drops later events whose (title, start, end) triple was already
// seen. The key includes the title, so differently named events at the same
// time all survive.
func dedupe(events []model.Event) []model.Event {
	type key struct {
		title      string
		start, end int64
	}
	seen := make(map[key]struct{}, len(events))
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		k := key{ev.Title, ev.Start.UnixNano(), ev.End.UnixNano()}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ev)
	}
	return out
}

func rruleWeekday(w model.Weekday) (rrule.Weekday, bool) {
	switch w {
	case model.Monday:
		return rrule.MO, true
	case model.Tuesday:
		return rrule.TU, true
	case model.Wednesday:
		return rrule.WE, true
	case model.Thursday:
		return rrule.TH, true
	case model.Friday:
		return rrule.FR, true
	case model.Saturday:
		return rrule.SA, true
	case model.Sunday:
		return rrule.SU, true
	default:
		return rrule.MO, false
	}
}
