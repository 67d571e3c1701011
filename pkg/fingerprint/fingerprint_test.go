package fingerprint

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimiclab/mimic/pkg/models"
	"github.com/mimiclab/mimic/pkg/parser"
)

// extractFirstFunction parses source and extracts tokens for the first
// function unit found.
func extractFirstFunction(t *testing.T, source string, lang parser.Language) TokenSequence {
	t.Helper()

	p := parser.New()
	defer p.Close()

	res, err := p.Parse([]byte(source), lang, "test."+string(lang))
	require.NoError(t, err)

	units := parser.ExtractUnits(res)
	for _, u := range units {
		if u.Kind == models.UnitFunction {
			seq, err := NewExtractor().Extract(u, res)
			require.NoError(t, err)
			return seq
		}
	}
	t.Fatal("no function unit found")
	return TokenSequence{}
}

func TestExtractDeterministic(t *testing.T) {
	source := `def process(items):
    total = 0
    for item in items:
        total += item.value
    return total
`
	a := extractFirstFunction(t, source, parser.LangPython)
	b := extractFirstFunction(t, source, parser.LangPython)

	assert.Equal(t, a.Tokens, b.Tokens)
	assert.Equal(t, a.ContentHash(), b.ContentHash())
}

func TestExtractNameInvariant(t *testing.T) {
	// Same structure, every identifier renamed. The sequences, and
	// therefore the fingerprints, must be identical.
	a := extractFirstFunction(t, "def add(a, b):\n    return a + b\n", parser.LangPython)
	b := extractFirstFunction(t, "def sum_values(x, y):\n    return x + y\n", parser.LangPython)

	assert.Equal(t, a.Tokens, b.Tokens)

	calc, err := NewCalculator(DefaultWidth)
	require.NoError(t, err)

	fa := calc.Fingerprint("unit-a", a)
	fb := calc.Fingerprint("unit-b", b)

	d, err := fa.Distance(fb)
	require.NoError(t, err)
	assert.Equal(t, 0, d)
}

func TestExtractDifferentStructureDiffers(t *testing.T) {
	a := extractFirstFunction(t, "def add(a, b):\n    return a + b\n", parser.LangPython)
	b := extractFirstFunction(t, `def walk(tree):
    for node in tree.children:
        if node.visible:
            yield node
`, parser.LangPython)

	assert.NotEqual(t, a.Tokens, b.Tokens)
	assert.NotEqual(t, a.ContentHash(), b.ContentHash())
}

func TestExtractEmptyBodyMinimalSequence(t *testing.T) {
	seq := extractFirstFunction(t, "def stub():\n    pass\n", parser.LangPython)

	assert.False(t, seq.Empty())
	assert.Contains(t, seq.Tokens, "unit:function")
	assert.Contains(t, seq.Tokens, "params:0")
}

func TestExtractIgnoresDocstringContent(t *testing.T) {
	a := extractFirstFunction(t, "def f(x):\n    \"\"\"Adds one.\"\"\"\n    return x + 1\n", parser.LangPython)
	b := extractFirstFunction(t, "def f(x):\n    \"\"\"Entirely different words here.\"\"\"\n    return x + 1\n", parser.LangPython)

	assert.Equal(t, a.Tokens, b.Tokens)
}

func TestExtractKeepsCallTargets(t *testing.T) {
	a := extractFirstFunction(t, "def f(x):\n    return validate(x)\n", parser.LangPython)
	b := extractFirstFunction(t, "def f(x):\n    return normalize(x)\n", parser.LangPython)

	assert.Contains(t, a.Tokens, "call:validate")
	assert.Contains(t, b.Tokens, "call:normalize")
	assert.NotEqual(t, a.Tokens, b.Tokens)
}

func TestExtractSyntaxErrorFails(t *testing.T) {
	p := parser.New()
	defer p.Close()

	res, err := p.Parse([]byte("def broken(:\n    return\n"), parser.LangPython, "broken.py")
	require.NoError(t, err)

	units := parser.ExtractUnits(res)
	require.NotEmpty(t, units)

	_, err = NewExtractor().Extract(units[0], res)
	require.Error(t, err)

	var parseErr *models.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestExtractGoFunction(t *testing.T) {
	seq := extractFirstFunction(t, `package demo

func Sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
`, parser.LangGo)

	assert.Contains(t, seq.Tokens, "unit:function")
	assert.NotEmpty(t, seq.Weights())
}

func TestNewCalculatorRejectsBadWidth(t *testing.T) {
	for _, width := range []int{0, -8, 7, 65, 128} {
		_, err := NewCalculator(width)
		require.Error(t, err, "width %d", width)

		var cfgErr *models.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	}
}

func TestSumEmptySequenceIsZero(t *testing.T) {
	calc, err := NewCalculator(DefaultWidth)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), calc.Sum(TokenSequence{}))
}

func TestSumSimilarSequencesAreClose(t *testing.T) {
	calc, err := NewCalculator(DefaultWidth)
	require.NoError(t, err)

	base := TokenSequence{Tokens: []string{
		"unit:function", "params:2", "node:block", "node:for_statement",
		"node:if_statement", "call:append", "args:1", "node:return_statement",
	}}
	similar := TokenSequence{Tokens: []string{
		"unit:function", "params:2", "node:block", "node:for_statement",
		"node:if_statement", "call:append", "args:1", "node:return_statement",
		"node:expression_statement",
	}}
	unrelated := TokenSequence{Tokens: []string{
		"unit:class", "bases:3", "node:decorator", "call:dataclass",
		"node:assignment", "node:string", "depth:4",
	}}

	near := HammingDistance(calc.Sum(base), calc.Sum(similar))
	far := HammingDistance(calc.Sum(base), calc.Sum(unrelated))

	assert.Less(t, near, far)
}

func TestHammingDistance(t *testing.T) {
	assert.Equal(t, 0, HammingDistance(0xdeadbeef, 0xdeadbeef))
	assert.Equal(t, 1, HammingDistance(0, 1))
	assert.Equal(t, 64, HammingDistance(0, ^uint64(0)))
}

func TestHammingDistanceTriangleInequality(t *testing.T) {
	rng := rand.New(rand.NewSource(13))

	for i := 0; i < 1000; i++ {
		a, b, c := rng.Uint64(), rng.Uint64(), rng.Uint64()

		ac := HammingDistance(a, c)
		bc := HammingDistance(b, c)
		ab := HammingDistance(a, b)

		diff := ac - bc
		if diff < 0 {
			diff = -diff
		}
		require.LessOrEqual(t, diff, ab)
	}
}

func TestSimilarityClamped(t *testing.T) {
	assert.Equal(t, 1.0, Similarity(64, 0))
	assert.Equal(t, 0.5, Similarity(64, 32))
	assert.Equal(t, 0.0, Similarity(64, 64))
	assert.Equal(t, 0.0, Similarity(0, 3))
}

func TestTokenSequenceWeights(t *testing.T) {
	seq := TokenSequence{Tokens: []string{"a", "b", "a", "a"}}

	w := seq.Weights()
	assert.Equal(t, 3, w["a"])
	assert.Equal(t, 1, w["b"])
}
