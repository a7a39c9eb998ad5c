// Package parser turns pipe-delimited source lines into events.
//
// The first non-blank line of a source is a header naming the columns in
// camelCase (eventId|eventName|startDate|...). Every following non-blank
// line must carry exactly as many fields as the header.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
)

const (
	Separator = "|"
	// NullParent is the literal that marks an event without a parent.
	NullParent = "NULL"
)

var camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// dateLayouts are tried in order. Layouts without a zone parse as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Options tune validation beyond the line format itself.
type Options struct {
	// StrictEventIDs rejects lines whose event id is empty.
	StrictEventIDs bool
}

type Parser struct {
	opts Options
}

func New(opts Options) *Parser {
	return &Parser{opts: opts}
}

var defaultParser = New(Options{})

// Parse parses one data line with the default options.
func Parse(header []string, line string, lineNumber int) (*events.Event, error) {
	return defaultParser.Parse(header, line, lineNumber)
}

// ParseHeader splits a header line and converts each column name to
// snake_case.
func ParseHeader(line string) []string {
	fields := strings.Split(strings.TrimSpace(line), Separator)
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = ToSnakeCase(strings.TrimSpace(f))
	}
	return header
}

// ToSnakeCase lower-cases name, inserting an underscore at each
// lower-to-upper boundary.
func ToSnakeCase(name string) string {
	return strings.ToLower(camelBoundary.ReplaceAllString(name, "${1}_${2}"))
}

// Parse maps the fields of line onto an event using the snake_case header.
// Errors wrap ErrMalformedLine, ErrInvalidDate or ErrInvalidEventID.
func (p *Parser) Parse(header []string, line string, lineNumber int) (*events.Event, error) {
	values := strings.Split(strings.TrimSpace(line), Separator)
	if len(values) != len(header) {
		return nil, fmt.Errorf("%w at line %d: expected %d fields, got %d",
			apperrors.ErrMalformedLine, lineNumber, len(header), len(values))
	}

	fields := make(map[string]string, len(header))
	for i, name := range header {
		fields[name] = values[i]
	}

	start, err := ParseDate(fields["start_date"])
	if err != nil {
		return nil, fmt.Errorf("%w at line %d: start_date %q", apperrors.ErrInvalidDate, lineNumber, fields["start_date"])
	}
	end, err := ParseDate(fields["end_date"])
	if err != nil {
		return nil, fmt.Errorf("%w at line %d: end_date %q", apperrors.ErrInvalidDate, lineNumber, fields["end_date"])
	}

	id := fields["event_id"]
	if p.opts.StrictEventIDs && strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w at line %d: empty event id", apperrors.ErrInvalidEventID, lineNumber)
	}

	return &events.Event{
		EventID:         id,
		EventName:       fields["event_name"],
		Description:     fields["description"],
		StartDate:       start,
		EndDate:         end,
		DurationMinutes: events.DurationMinutes(start, end),
		ParentEventID:   parentOf(fields),
		ResearchValue:   fields["research_value"],
		Metadata:        events.Metadata{Line: lineNumber},
	}, nil
}

func parentOf(fields map[string]string) *string {
	v, ok := fields["parent_id"]
	if !ok {
		v, ok = fields["parent_event_id"]
	}
	if !ok || v == NullParent {
		return nil
	}
	return &v
}

// ParseDate accepts the timestamp layouts allowed in ingestion files and
// returns the instant in UTC. Zone-less values are read as UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
