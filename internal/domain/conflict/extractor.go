package conflict

import (
	"regexp"
	"strings"
)

var declarationPattern = regexp.MustCompile( //nolint:gochecknoglobals
	`^(?:export\s+(?:default\s+)?)?(?:pub(?:\([a-z]+\))?\s+)?` +
		`(?:(?:public|private|protected|static|abstract|final|internal|sealed)\s+)*(?:async\s+)?` +
		`(?:def|class|func|function|fn|impl|struct|interface|trait|enum|type|module|object)\s`)

// Unit is a contiguous span of the source. Joining every unit's Text in order reproduces the input.
type Unit struct {
	Text string
	// Global is set for code outside any top-level declaration.
	Global bool
	// Conflicted is set when the unit holds at least one well-formed marker triple.
	Conflicted bool
}

type lineKind int

const (
	lineBlank lineKind = iota
	lineIndented
	lineCloser
	lineDecorator
	lineDeclaration
	lineTopLevel
)

func classifyLine(line string) lineKind {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "", classifyMarker(line) != notMarker:
		// stray markers never move unit boundaries
		return lineBlank
	case line[0] == ' ' || line[0] == '\t':
		return lineIndented
	case declarationPattern.MatchString(line):
		return lineDeclaration
	case strings.HasPrefix(trimmed, "@"):
		return lineDecorator
	case strings.HasPrefix(trimmed, "}") || strings.HasPrefix(trimmed, ")") ||
		strings.HasPrefix(trimmed, "]") || trimmed == "end":
		return lineCloser
	}
	return lineTopLevel
}

// regionKind classifies a conflict by the first non-blank line of either side, which decides
// whether the conflict opens a declaration, sits at top level, or belongs to the enclosing unit.
func regionKind(lines []string, r region) lineKind {
	for _, side := range [][]string{r.head(lines), r.base(lines)} {
		for _, l := range side {
			if k := classifyLine(l); k != lineBlank {
				if k == lineDecorator {
					return lineDeclaration
				}
				return k
			}
		}
	}
	return lineBlank
}

// Units partitions content into top-level declarations and the global code between them.
// Marker triples are kept whole inside a single unit.
func Units(content string) []Unit {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	sc := scanMarkers(lines)
	regionAt := make(map[int]region, len(sc.regions))
	for _, r := range sc.regions {
		regionAt[r.open] = r
	}

	var (
		units   []Unit
		start   int
		global  = true
		inBlock bool
		hits    bool
	)
	flush := func(end int) {
		if end > start {
			units = append(units, Unit{
				Text:       strings.Join(lines[start:end], ""),
				Global:     global,
				Conflicted: hits,
			})
		}
		start, hits = end, false
	}
	openBlock := func(at int) {
		flush(at)
		global, inBlock = false, true
	}
	openGlobal := func(at int) {
		flush(at)
		global, inBlock = true, false
	}

	for i := 0; i < len(lines); {
		if r, ok := regionAt[i]; ok {
			switch regionKind(lines, r) {
			case lineDeclaration:
				openBlock(i)
			case lineTopLevel:
				if inBlock {
					openGlobal(i)
				}
			case lineBlank, lineIndented, lineCloser, lineDecorator:
			}
			hits = true
			i = r.close + 1
			continue
		}

		switch classifyLine(lines[i]) {
		case lineDeclaration:
			openBlock(decoratorStart(lines, start, i))
		case lineDecorator:
			// attached to the declaration that follows
		case lineTopLevel:
			if inBlock {
				openGlobal(i)
			}
		case lineBlank, lineIndented, lineCloser:
		}
		i++
	}
	flush(len(lines))

	return units
}

// decoratorStart walks back over decorator lines directly above a declaration at i,
// never crossing the current unit's start.
func decoratorStart(lines []string, unitStart, i int) int {
	j := i
	for j > unitStart && classifyLine(lines[j-1]) == lineDecorator {
		j--
	}
	return j
}

// Extract returns, in source order, the semantic units of content that contain a well-formed
// conflict. Units whose markers are all malformed are left out.
func Extract(content string) []string {
	var chunks []string
	for _, u := range Units(content) {
		if u.Conflicted {
			chunks = append(chunks, u.Text)
		}
	}
	return chunks
}
