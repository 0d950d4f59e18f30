// Package conflict splits conflicted file content into semantic chunks and resolves the easy ones
// without leaving the process.
package conflict

import "strings"

const markerLen = 7

type markerKind int

const (
	notMarker markerKind = iota
	markerOpen
	markerSeparator
	markerClose
)

func classifyMarker(line string) markerKind {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case isMarker(line, '<'):
		return markerOpen
	case isMarker(line, '>'):
		return markerClose
	case strings.TrimRight(line, " \t") == strings.Repeat("=", markerLen):
		return markerSeparator
	}
	return notMarker
}

// isMarker matches exactly seven c characters followed by end of line or a space and a label.
func isMarker(line string, c byte) bool {
	if len(line) < markerLen {
		return false
	}
	for i := range markerLen {
		if line[i] != c {
			return false
		}
	}
	return len(line) == markerLen || line[markerLen] == ' ' || line[markerLen] == '\t'
}

// region is a well-formed marker triple, as line indexes into the scanned slice.
type region struct {
	open, sep, close int
}

func (r region) head(lines []string) []string { return lines[r.open+1 : r.sep] }
func (r region) base(lines []string) []string { return lines[r.sep+1 : r.close] }

type scan struct {
	regions   []region
	malformed int
}

// scanMarkers finds well-formed marker triples. Nested, unbalanced or out-of-order markers are
// counted as malformed and never reported as regions.
func scanMarkers(lines []string) scan {
	type pending struct {
		open, sep int
		bad       bool
	}

	var (
		res   scan
		stack []pending
	)

	for i, line := range lines {
		switch classifyMarker(line) {
		case markerOpen:
			nested := len(stack) > 0
			for j := range stack {
				stack[j].bad = true
			}
			stack = append(stack, pending{open: i, sep: -1, bad: nested})

		case markerSeparator:
			if len(stack) == 0 {
				res.malformed++
				continue
			}
			top := &stack[len(stack)-1]
			if top.sep >= 0 {
				top.bad = true
				continue
			}
			top.sep = i

		case markerClose:
			if len(stack) == 0 {
				res.malformed++
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.bad || top.sep < 0 || len(stack) > 0 {
				res.malformed++
				continue
			}
			res.regions = append(res.regions, region{open: top.open, sep: top.sep, close: i})

		case notMarker:
		}
	}
	res.malformed += len(stack)

	return res
}

// splitLines splits s after every newline, keeping line endings.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// HasMarkers reports whether content contains any conflict marker line, well-formed or not.
func HasMarkers(content string) bool {
	for _, line := range splitLines(content) {
		if classifyMarker(line) != notMarker {
			return true
		}
	}
	return false
}
