// Package ics renders the expanded worship schedule as an iCalendar feed so
// users can subscribe from an external calendar client.
package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/zakhtar8/aamalcalendar/internal/dataset"
	"github.com/zakhtar8/aamalcalendar/internal/model"
)

const prodID = "-//aamalcalendar//Hijri Worship Schedule//EN"

// Palette resolves an event color tag to a hex value for the COLOR property.
// A nil palette omits the property.
type Palette interface {
	Hex(tag model.ColorTag) string
}

// Build serializes events into a VCALENDAR document. All-day events use
// VALUE=DATE semantics with the exclusive DTEND the expander already
// produces; timed events carry their real instants. stamp becomes every
// event's DTSTAMP, so a fixed stamp yields byte-identical output for fixed
// input.
func Build(events []model.Event, palette Palette, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp.UTC())
		ve.SetSummary(ev.Title)

		if desc := describe(ev); desc != "" {
			ve.SetDescription(desc)
		}
		if ev.Month != "" {
			ve.SetProperty(ical.ComponentProperty("CATEGORIES"), ev.Month)
		}
		if palette != nil {
			if hex := palette.Hex(ev.Color); hex != "" {
				ve.SetProperty(ical.ComponentProperty("COLOR"), hex)
			}
		}

		if ev.AllDay {
			ve.SetAllDayStartAt(ev.Start)
			ve.SetAllDayEndAt(ev.End)
		} else {
			ve.SetStartAt(ev.Start)
			ve.SetEndAt(ev.End)
		}
	}

	return cal.Serialize()
}

// describe flattens an event's free text and structured sections into a
// plain-text description. Nested bullets are rebuilt into a tree first so
// indentation reflects structure rather than raw depth numbers.
func describe(ev model.Event) string {
	var parts []string
	if ev.Description != "" {
		parts = append(parts, ev.Description)
	}
	for _, sec := range ev.Sections {
		var b strings.Builder
		if sec.Heading != "" {
			b.WriteString(sec.Heading + ":")
		}
		for _, line := range sec.Lines {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(line)
		}
		for _, node := range dataset.BuildBulletTree(sec.Bullets) {
			writeBullets(&b, node, 0)
		}
		if b.Len() > 0 {
			parts = append(parts, b.String())
		}
	}
	return strings.Join(parts, "\n\n")
}

func writeBullets(b *strings.Builder, node *dataset.BulletNode, depth int) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(strings.Repeat("  ", depth) + "- " + node.Text)
	for _, child := range node.Children {
		writeBullets(b, child, depth+1)
	}
}
