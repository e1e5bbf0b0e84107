package script

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// Pause durations are expressed in seconds with one decimal of
	// precision; values outside [MinPauseSeconds, MaxPauseSeconds] are
	// clamped, never rejected.
	MinPauseSeconds = 0.1
	MaxPauseSeconds = 2.0

	tokenOpen  = "<#"
	tokenClose = "#>"
)

// Marker is one inline pause directive inside a document.
type Marker struct {
	ID      string
	Seconds float64
}

type segment struct {
	text   string
	marker *Marker
}

// Document is an ordered sequence of text runs and pause markers.
// It carries no locking; callers serialize access.
type Document struct {
	segments []segment
}

func NewDocument() *Document {
	return &Document{}
}

// SetText replaces the whole document with the parse of a wire string.
func (d *Document) SetText(wire string) {
	d.segments = parse(wire)
}

// InsertPause inserts a pause marker at the given visible-rune position.
// Seconds are rounded to one decimal and clamped; positions beyond the end
// append. The created marker is returned.
func (d *Document) InsertPause(runePos int, seconds float64) Marker {
	m := Marker{ID: uuid.NewString(), Seconds: ClampPause(seconds)}
	if runePos < 0 {
		runePos = 0
	}

	out := make([]segment, 0, len(d.segments)+2)
	remaining := runePos
	inserted := false
	for _, seg := range d.segments {
		if inserted || seg.marker != nil {
			out = append(out, seg)
			continue
		}
		runes := utf8.RuneCountInString(seg.text)
		if remaining > runes {
			remaining -= runes
			out = append(out, seg)
			continue
		}
		head, tail := splitRunes(seg.text, remaining)
		if head != "" {
			out = append(out, segment{text: head})
		}
		out = append(out, segment{marker: &m})
		if tail != "" {
			out = append(out, segment{text: tail})
		}
		inserted = true
	}
	if !inserted {
		out = append(out, segment{marker: &m})
	}
	d.segments = normalize(out)
	return m
}

// DeleteMarker removes exactly one pause marker by id, leaving the
// surrounding text runs untouched. It reports whether the marker existed.
func (d *Document) DeleteMarker(id string) bool {
	out := make([]segment, 0, len(d.segments))
	found := false
	for _, seg := range d.segments {
		if seg.marker != nil && seg.marker.ID == id && !found {
			found = true
			continue
		}
		out = append(out, seg)
	}
	if found {
		d.segments = normalize(out)
	}
	return found
}

// Serialize walks the sequence in order and emits plain text interleaved
// with <#N#> tokens. Text runs are emitted verbatim.
func (d *Document) Serialize() string {
	var b strings.Builder
	for _, seg := range d.segments {
		if seg.marker != nil {
			b.WriteString(FormatPause(seg.marker.Seconds))
			continue
		}
		b.WriteString(seg.text)
	}
	return b.String()
}

// CharacterCount counts visible characters only; pause markers are free.
func (d *Document) CharacterCount() int {
	count := 0
	for _, seg := range d.segments {
		if seg.marker == nil {
			count += utf8.RuneCountInString(seg.text)
		}
	}
	return count
}

// Markers returns the document's pause markers in order.
func (d *Document) Markers() []Marker {
	markers := make([]Marker, 0, len(d.segments))
	for _, seg := range d.segments {
		if seg.marker != nil {
			markers = append(markers, *seg.marker)
		}
	}
	return markers
}

func (d *Document) IsEmpty() bool {
	return d.CharacterCount() == 0
}

// ClampPause rounds to one decimal and clamps into the valid pause range.
func ClampPause(seconds float64) float64 {
	if math.IsNaN(seconds) {
		return MinPauseSeconds
	}
	rounded := math.Round(seconds*10) / 10
	if rounded < MinPauseSeconds {
		return MinPauseSeconds
	}
	if rounded > MaxPauseSeconds {
		return MaxPauseSeconds
	}
	return rounded
}

// FormatPause renders a pause duration as its wire token, e.g. <#0.5#>.
func FormatPause(seconds float64) string {
	return tokenOpen + strconv.FormatFloat(ClampPause(seconds), 'f', 1, 64) + tokenClose
}

// parse scans a wire string for well-formed pause tokens. A token whose
// body does not parse as a number stays in the text verbatim; user-typed
// text that happens to contain a well-formed token is indistinguishable
// from a marker and is parsed as one.
func parse(wire string) []segment {
	var segments []segment
	text := &strings.Builder{}

	flush := func() {
		if text.Len() > 0 {
			segments = append(segments, segment{text: text.String()})
			text.Reset()
		}
	}

	rest := wire
	for rest != "" {
		open := strings.Index(rest, tokenOpen)
		if open < 0 {
			text.WriteString(rest)
			break
		}
		end := strings.Index(rest[open+len(tokenOpen):], tokenClose)
		if end < 0 {
			text.WriteString(rest)
			break
		}
		body := rest[open+len(tokenOpen) : open+len(tokenOpen)+end]
		seconds, err := strconv.ParseFloat(strings.TrimSpace(body), 64)
		if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			// Not a pause token; keep the delimiter as literal text and
			// continue scanning after it.
			text.WriteString(rest[:open+len(tokenOpen)])
			rest = rest[open+len(tokenOpen):]
			continue
		}
		text.WriteString(rest[:open])
		flush()
		segments = append(segments, segment{marker: &Marker{ID: uuid.NewString(), Seconds: ClampPause(seconds)}})
		rest = rest[open+len(tokenOpen)+end+len(tokenClose):]
	}
	flush()
	return normalize(segments)
}

// normalize merges adjacent text runs and drops empty ones.
func normalize(segments []segment) []segment {
	out := make([]segment, 0, len(segments))
	for _, seg := range segments {
		if seg.marker == nil && seg.text == "" {
			continue
		}
		if seg.marker == nil && len(out) > 0 && out[len(out)-1].marker == nil {
			out[len(out)-1].text += seg.text
			continue
		}
		out = append(out, seg)
	}
	return out
}

func splitRunes(s string, runePos int) (string, string) {
	if runePos <= 0 {
		return "", s
	}
	for i := range s {
		if runePos == 0 {
			return s[:i], s[i:]
		}
		runePos--
	}
	return s, ""
}
