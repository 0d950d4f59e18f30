package conflict

import (
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Rule names the heuristic that settled a marker triple.
type Rule string

const (
	RuleNormalizedEqual Rule = "normalized_equal"
	RuleOneSideEmpty    Rule = "one_side_empty"
	RuleVersionBump     Rule = "version_bump"
	RuleImportUnion     Rule = "import_union"
	RuleWhitespaceOnly  Rule = "whitespace_only"
)

//nolint:gochecknoglobals
var (
	versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)
	importPattern  = regexp.MustCompile(`^\s*(?:` +
		`import\s|from\s+\S+\s+import\s|#include\s|#import\s|@import\s|use\s|using\s|require\s*\(|` +
		`(?:const|let|var)\s+[\w{}\s,]+=\s*require\s*\()`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	quoteReplacer = strings.NewReplacer(`'`, `"`, "`", `"`)
)

// Resolution is the outcome of a successful heuristic pass over a chunk.
type Resolution struct {
	Text string
	// Rules holds the rule that settled each marker triple, in source order.
	Rules []Rule
}

type rule struct {
	name  Rule
	apply func(head, base []string) ([]string, bool)
}

// rules are tried in order; the first match wins.
var rules = []rule{ //nolint:gochecknoglobals
	{RuleNormalizedEqual, normalizedEqual},
	{RuleOneSideEmpty, oneSideEmpty},
	{RuleVersionBump, versionBump},
	{RuleImportUnion, importUnion},
	{RuleWhitespaceOnly, whitespaceOnly},
}

// Resolve settles every marker triple in chunk with the rule table. It reports false when the
// chunk has no well-formed triple, has malformed markers, or any triple matches no rule; the
// caller must then fall back. Resolve is pure: equal input gives equal output.
func Resolve(chunk string) (Resolution, bool) {
	lines := splitLines(chunk)
	sc := scanMarkers(lines)
	if len(sc.regions) == 0 || sc.malformed > 0 {
		return Resolution{}, false
	}

	var (
		out    strings.Builder
		next   int
		picked = make([]Rule, 0, len(sc.regions))
	)
	for _, r := range sc.regions {
		head, base := r.head(lines), r.base(lines)

		var (
			resolved []string
			matched  bool
		)
		for _, rl := range rules {
			if resolved, matched = rl.apply(head, base); matched {
				picked = append(picked, rl.name)
				break
			}
		}
		if !matched {
			return Resolution{}, false
		}

		for _, l := range lines[next:r.open] {
			out.WriteString(l)
		}
		text := strings.Join(resolved, "")
		// the triple was the unterminated tail of the chunk; keep it that way
		if !strings.HasSuffix(lines[r.close], "\n") {
			text = strings.TrimSuffix(strings.TrimSuffix(text, "\n"), "\r")
		}
		out.WriteString(text)
		next = r.close + 1
	}
	for _, l := range lines[next:] {
		out.WriteString(l)
	}

	return Resolution{Text: out.String(), Rules: picked}, true
}

func normalizedEqual(head, base []string) ([]string, bool) {
	return head, normalize(head) == normalize(base)
}

func oneSideEmpty(head, base []string) ([]string, bool) {
	switch {
	case isBlank(head) && !isBlank(base):
		return base, true
	case isBlank(base) && !isBlank(head):
		return head, true
	}
	return nil, false
}

// versionBump prefers head when both sides carry version tokens and either their version sets
// nest strictly or the sides differ only in those tokens.
func versionBump(head, base []string) ([]string, bool) {
	h, b := strings.Join(head, ""), strings.Join(base, "")
	hv := lo.Uniq(versionPattern.FindAllString(h, -1))
	bv := lo.Uniq(versionPattern.FindAllString(b, -1))
	if len(hv) == 0 || len(bv) == 0 {
		return nil, false
	}

	if strictSubset(hv, bv) || strictSubset(bv, hv) {
		return head, true
	}
	masked := func(s string) string {
		return whitespaceRun.ReplaceAllString(strings.TrimSpace(versionPattern.ReplaceAllString(s, "#")), " ")
	}
	if masked(h) == masked(b) && !slices.Equal(sorted(hv), sorted(bv)) {
		return head, true
	}
	return nil, false
}

func importUnion(head, base []string) ([]string, bool) {
	hl, hok := importLines(head)
	bl, bok := importLines(base)
	if !hok || !bok {
		return nil, false
	}

	merged := sorted(lo.Uniq(append(hl, bl...)))
	out := make([]string, len(merged))
	for i, l := range merged {
		out[i] = l + "\n"
	}
	return out, true
}

func whitespaceOnly(head, base []string) ([]string, bool) {
	strip := func(lines []string) string {
		return whitespaceRun.ReplaceAllString(strings.Join(lines, ""), "")
	}
	return head, strip(head) == strip(base)
}

// importLines returns the non-blank lines of side with trailing whitespace trimmed, and whether
// every one of them is an import-style statement.
func importLines(side []string) ([]string, bool) {
	var out []string
	for _, l := range side {
		l = strings.TrimRight(l, " \t\r\n")
		if strings.TrimSpace(l) == "" {
			continue
		}
		if !importPattern.MatchString(l) {
			return nil, false
		}
		out = append(out, l)
	}
	return out, len(out) > 0
}

func normalize(lines []string) string {
	s := quoteReplacer.Replace(strings.Join(lines, ""))
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

func isBlank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

func strictSubset(a, b []string) bool {
	return len(a) < len(b) && lo.Every(b, a)
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}
