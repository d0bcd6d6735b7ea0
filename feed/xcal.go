package feed

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/emersion/go-ical"

	"github.com/cyp0633/libschedule/schedule"
)

// XCalNamespace is the RFC 6321 namespace.
const XCalNamespace = "urn:ietf:params:xml:ns:icalendar-2.0"

var dateTimeProps = map[string]bool{
	ical.PropDateTimeStart:   true,
	ical.PropDateTimeEnd:     true,
	ical.PropDateTimeStamp:   true,
	ical.PropRecurrenceID:    true,
	ical.PropExceptionDates:  true,
	ical.PropLastModified:    true,
	ical.PropRecurrenceDates: true,
}

// ExportXCal renders the same document as ExportCalendar in xCal form.
func ExportXCal(cal *schedule.Calendar, events []*schedule.Event, persisted []*schedule.Occurrence) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewExporter().EncodeXCal(&buf, cal, events, persisted); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeXCal writes the xCal document for cal to w.
func (x *Exporter) EncodeXCal(w io.Writer, cal *schedule.Calendar, events []*schedule.Event, persisted []*schedule.Occurrence) error {
	doc, err := x.Calendar(cal, events, persisted)
	if err != nil {
		return err
	}
	xdoc := XCal(doc)
	xdoc.Indent(2)
	if _, err := xdoc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xcal: %w", err)
	}
	return nil
}

// XCal converts an iCalendar tree into an xCal document.
func XCal(cal *ical.Calendar) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	root := doc.CreateElement("icalendar")
	root.CreateAttr("xmlns", XCalNamespace)
	appendComponent(root, cal.Component)
	return doc
}

func appendComponent(parent *etree.Element, comp *ical.Component) {
	elem := parent.CreateElement(strings.ToLower(comp.Name))

	if len(comp.Props) > 0 {
		props := elem.CreateElement("properties")
		for _, name := range sortedPropNames(comp.Props) {
			for _, prop := range comp.Props.Values(name) {
				appendProp(props, prop)
			}
		}
	}
	if len(comp.Children) > 0 {
		children := elem.CreateElement("components")
		for _, child := range comp.Children {
			appendComponent(children, child)
		}
	}
}

func appendProp(parent *etree.Element, prop ical.Prop) {
	elem := parent.CreateElement(strings.ToLower(prop.Name))

	if tzid := prop.Params.Get("TZID"); tzid != "" {
		params := elem.CreateElement("parameters")
		params.CreateElement("tzid").CreateElement("text").SetText(tzid)
	}

	switch {
	case prop.Name == ical.PropRecurrenceRule:
		appendRecur(elem, prop.Value)
	case dateTimeProps[prop.Name]:
		for _, v := range strings.Split(prop.Value, ",") {
			elem.CreateElement("date-time").SetText(xcalDateTime(v))
		}
	default:
		elem.CreateElement("text").SetText(prop.Value)
	}
}

// appendRecur splits "FREQ=WEEKLY;COUNT=3" into one element per part, one
// element per value for list parts.
func appendRecur(parent *etree.Element, value string) {
	recur := parent.CreateElement("recur")
	for _, part := range strings.Split(value, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		name := strings.ToLower(kv[0])
		if name == "until" {
			recur.CreateElement(name).SetText(xcalDateTime(kv[1]))
			continue
		}
		for _, v := range strings.Split(kv[1], ",") {
			recur.CreateElement(name).SetText(v)
		}
	}
}

// xcalDateTime turns 20080105T080000Z into 2008-01-05T08:00:00Z, leaving
// anything unparseable alone.
func xcalDateTime(v string) string {
	if t, err := time.Parse("20060102T150405Z", v); err == nil {
		return t.Format("2006-01-02T15:04:05Z")
	}
	if t, err := time.Parse("20060102T150405", v); err == nil {
		return t.Format("2006-01-02T15:04:05")
	}
	return v
}

// sortedPropNames puts VERSION, PRODID and UID first and the rest by name.
func sortedPropNames(props ical.Props) []string {
	names := make([]string, 0, len(props))
	for _, lead := range []string{ical.PropVersion, ical.PropProductID, ical.PropUID} {
		if _, ok := props[lead]; ok {
			names = append(names, lead)
		}
	}
	var rest []string
	for name := range props {
		if name != ical.PropVersion && name != ical.PropProductID && name != ical.PropUID {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
