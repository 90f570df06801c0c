package gate

import (
	"regexp"
	"strings"
	"sync"
)

// Marker describes the structured decision line an oracle is asked to emit,
// e.g. "DECISION: PASS".
type Marker struct {
	Key     string
	Approve string
	Reject  string
}

var (
	// DesignMarker is emitted by the design evaluator.
	DesignMarker = Marker{Key: "DECISION", Approve: "PASS", Reject: "REVISE"}
	// ShipMarker is emitted by the playtester.
	ShipMarker = Marker{Key: "VERDICT", Approve: "SHIP", Reject: "FIX"}
)

// Verdict sources.
const (
	SourceMarker    = "marker"
	SourceHeuristic = "heuristic"
	SourceMalformed = "malformed"
)

// Verdict is a parsed approval decision. Malformed output is never approved.
type Verdict struct {
	Approved bool
	Source   string
}

// Malformed reports whether no decision could be found.
func (v Verdict) Malformed() bool {
	return v.Source == SourceMalformed
}

// ParseVerdict reads the decision from oracle text. The last structured
// marker line wins: its value must begin with the approve or reject word,
// anything else ("NOT SHIP", "DO NOT PASS") is treated as malformed and is
// never approved. Without a marker line, a keyword heuristic is applied: the
// text after the last occurrence of the marker key is searched for the
// approve keyword first, then the reject keyword, then the whole text is
// searched.
func ParseVerdict(text string, m Marker) Verdict {
	p := patternsFor(m)
	if matches := p.line.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		value := strings.ToUpper(strings.TrimLeft(matches[len(matches)-1][1], "`'\"*_ \t"))
		switch {
		case p.approveValue.MatchString(value):
			return Verdict{Approved: true, Source: SourceMarker}
		case p.rejectValue.MatchString(value):
			return Verdict{Approved: false, Source: SourceMarker}
		}
		return Verdict{Approved: false, Source: SourceMalformed}
	}

	upper := strings.ToUpper(text)
	scope := upper
	if i := strings.LastIndex(upper, strings.ToUpper(m.Key)); i >= 0 {
		scope = upper[i+len(m.Key):]
	}
	for _, candidate := range []string{scope, upper} {
		approve := p.approveWord.MatchString(candidate)
		reject := p.rejectWord.MatchString(candidate)
		switch {
		case approve && !reject:
			return Verdict{Approved: true, Source: SourceHeuristic}
		case reject:
			return Verdict{Approved: false, Source: SourceHeuristic}
		}
	}
	return Verdict{Approved: false, Source: SourceMalformed}
}

type markerPatterns struct {
	line         *regexp.Regexp
	approveValue *regexp.Regexp
	rejectValue  *regexp.Regexp
	approveWord  *regexp.Regexp
	rejectWord   *regexp.Regexp
}

var compiledMarkers sync.Map // Marker -> *markerPatterns

func patternsFor(m Marker) *markerPatterns {
	if p, ok := compiledMarkers.Load(m); ok {
		return p.(*markerPatterns)
	}
	approve := regexp.QuoteMeta(strings.ToUpper(m.Approve))
	reject := regexp.QuoteMeta(strings.ToUpper(m.Reject))
	p := &markerPatterns{
		line:         regexp.MustCompile(`(?im)^[\s>*#_\-]*` + regexp.QuoteMeta(m.Key) + `[\s*_]*[:=][\s*_]*(.*)$`),
		approveValue: regexp.MustCompile(`^` + approve + `\b`),
		rejectValue:  regexp.MustCompile(`^` + reject + `\b`),
		approveWord:  regexp.MustCompile(`\b` + approve + `\b`),
		rejectWord:   regexp.MustCompile(`\b` + reject + `\b`),
	}
	actual, _ := compiledMarkers.LoadOrStore(m, p)
	return actual.(*markerPatterns)
}

// SectionKeys are the report headers that end an ERRORS list. Other
// capitalized prefixes ("HTML:", "API:") and bulleted lines are ordinary
// entries.
var SectionKeys = []string{"VERDICT", "DECISION", "WARNINGS", "NOTES", "LOGS", "SUMMARY", "FEEDBACK", "SUGGESTIONS", "FIXES"}

var (
	errorsHeaderPattern  = regexp.MustCompile(`(?i)^[\s>*#_\-]*errors(?:\s*\(\d+\))?[\s*_]*:[\s*_]*(.*)$`)
	sectionHeaderPattern = regexp.MustCompile(`^(?:\s|#|>|\*\*|__)*(?i:` + strings.Join(SectionKeys, "|") + `)(?:\s*\(\d+\))?[\s*_]*[:=]`)
	bulletPattern        = regexp.MustCompile(`^(?:[-*•+]|\d+[.)])\s+`)
)

// ExtractErrors returns the entries listed under the last "ERRORS:" header.
// Each non-blank line is one entry with its bullet stripped. The list ends
// at the first blank line after an entry or at the next header named in
// SectionKeys. Placeholder entries such as "none" are dropped.
func ExtractErrors(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	start := -1
	var inline string
	for i, line := range lines {
		if m := errorsHeaderPattern.FindStringSubmatch(line); m != nil {
			start = i
			inline = m[1]
		}
	}
	if start < 0 {
		return nil
	}

	var entries []string
	add := func(raw string) {
		entry := strings.TrimSpace(bulletPattern.ReplaceAllString(strings.TrimSpace(raw), ""))
		if entry != "" && !isPlaceholder(entry) {
			entries = append(entries, entry)
		}
	}
	add(inline)

	seen := strings.TrimSpace(inline) != ""
	for _, line := range lines[start+1:] {
		if strings.TrimSpace(line) == "" {
			if seen {
				break
			}
			continue
		}
		if sectionHeaderPattern.MatchString(line) {
			break
		}
		seen = true
		add(line)
	}
	return entries
}

func isPlaceholder(entry string) bool {
	switch strings.ToLower(strings.Trim(entry, ".!` ")) {
	case "none", "n/a", "na", "no errors", "no errors found", "nothing":
		return true
	}
	return false
}
