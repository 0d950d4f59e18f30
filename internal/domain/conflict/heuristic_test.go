package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Rules(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  string
		rule  Rule
	}{
		{
			name:  "version bump picks head",
			chunk: "<<<<<<< HEAD\n1.2.3\n=======\n1.2.0\n>>>>>>> branch",
			want:  "1.2.3",
			rule:  RuleVersionBump,
		},
		{
			name:  "version superset picks head",
			chunk: "<<<<<<< HEAD\ndeps: 1.0.0\n=======\ndeps: 1.0.0 2.0.0 extra\n>>>>>>> branch\n",
			want:  "deps: 1.0.0\n",
			rule:  RuleVersionBump,
		},
		{
			name:  "import union",
			chunk: "<<<<<<< HEAD\nimport a\nimport b\n=======\nimport b\nimport c\n>>>>>>> branch\n",
			want:  "import a\nimport b\nimport c\n",
			rule:  RuleImportUnion,
		},
		{
			name: "require union",
			chunk: "<<<<<<< HEAD\nconst x = require('x');\n=======\n" +
				"const y = require('y');\nconst x = require('x');\n>>>>>>> branch\n",
			want: "const x = require('x');\nconst y = require('y');\n",
			rule: RuleImportUnion,
		},
		{
			name:  "quotes and spacing normalize equal",
			chunk: "<<<<<<< HEAD\nprint(\"hi\",  x)\n=======\nprint('hi', x)\n>>>>>>> branch\n",
			want:  "print(\"hi\",  x)\n",
			rule:  RuleNormalizedEqual,
		},
		{
			name:  "empty head takes base",
			chunk: "<<<<<<< HEAD\n   \n=======\nkeep()\n>>>>>>> branch\n",
			want:  "keep()\n",
			rule:  RuleOneSideEmpty,
		},
		{
			name:  "empty base takes head",
			chunk: "<<<<<<< HEAD\nkeep()\n=======\n>>>>>>> branch\n",
			want:  "keep()\n",
			rule:  RuleOneSideEmpty,
		},
		{
			name:  "whitespace only difference",
			chunk: "<<<<<<< HEAD\nf(a,b)\n=======\nf( a, b )\n>>>>>>> branch\n",
			want:  "f(a,b)\n",
			rule:  RuleWhitespaceOnly,
		},
		{
			name: "surrounding code is kept",
			chunk: "def f():\n<<<<<<< HEAD\n    return 1\n=======\n    return  1\n>>>>>>> b\n" +
				"    # tail\n",
			want: "def f():\n    return 1\n    # tail\n",
			rule: RuleNormalizedEqual,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := Resolve(tt.chunk)
			require.True(t, ok)
			assert.Equal(t, tt.want, res.Text)
			assert.Equal(t, []Rule{tt.rule}, res.Rules)
		})
	}
}

func TestResolve_NeedsFallback(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
	}{
		{
			name:  "different logic",
			chunk: "<<<<<<< HEAD\nreturn a * b\n=======\nreturn a + b\n>>>>>>> branch\n",
		},
		{
			name:  "no markers",
			chunk: "def f():\n    pass\n",
		},
		{
			name:  "malformed",
			chunk: "<<<<<<< HEAD\na\n>>>>>>> branch\n",
		},
		{
			name:  "one of two triples unresolvable",
			chunk: "<<<<<<< HEAD\nx\n=======\nx\n>>>>>>> b\n<<<<<<< HEAD\ny()\n=======\nz()\n>>>>>>> b\n",
		},
		{
			name:  "imports mixed with code",
			chunk: "<<<<<<< HEAD\nimport a\nrun()\n=======\nimport b\n>>>>>>> branch\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Resolve(tt.chunk)
			assert.False(t, ok)
		})
	}
}

func TestResolve_MultipleTriples(t *testing.T) {
	chunk := "<<<<<<< HEAD\nx\n=======\nx\n>>>>>>> b\nmid\n<<<<<<< HEAD\nimport b\n=======\nimport a\n>>>>>>> b\n"

	res, ok := Resolve(chunk)
	require.True(t, ok)
	assert.Equal(t, "x\nmid\nimport a\nimport b\n", res.Text)
	assert.Equal(t, []Rule{RuleNormalizedEqual, RuleImportUnion}, res.Rules)
}

func TestResolve_Deterministic(t *testing.T) {
	chunks := append(Extract(multipleConflicts),
		"<<<<<<< HEAD\nimport z\nimport a\n=======\nimport m\n>>>>>>> b\n")

	for _, chunk := range chunks {
		first, ok1 := Resolve(chunk)
		second, ok2 := Resolve(chunk)
		assert.Equal(t, ok1, ok2)
		assert.Equal(t, first, second)
	}
}

func TestResolve_NormalizedEqualRoundTrip(t *testing.T) {
	head := "x = {'a': 1,\n     'b': 2}\n"
	base := "x = {\"a\": 1, \"b\": 2}\n"
	chunk := "<<<<<<< HEAD\n" + head + "=======\n" + base + ">>>>>>> other\n"

	res, ok := Resolve(chunk)
	require.True(t, ok)
	assert.Equal(t, head, res.Text)
}
