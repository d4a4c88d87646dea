package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parsePython is a test helper that runs the parser and fails on error.
func parsePython(t *testing.T, src string) Result {
	t.Helper()
	res, err := NewPythonParser().Parse(context.Background(), src)
	require.NoError(t, err)
	return res
}

func TestParse_AssignmentAndUse(t *testing.T) {
	res := parsePython(t, "x = 1\ny = x + z\n")
	assert.Equal(t, []string{"x", "y"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"z"}, res.Uses.Sorted())
}

func TestParse_FunctionDeclarationIsDefinition(t *testing.T) {
	res := parsePython(t, `def f(a):
    return a + b

result = f(1)
`)
	assert.Equal(t, []string{"f"}, res.Functions.Sorted())
	assert.Equal(t, []string{"f", "result"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"b"}, res.Uses.Sorted())
	assert.Empty(t, res.Calls.Sorted())
}

func TestParse_CallsAreSubsetOfUses(t *testing.T) {
	res := parsePython(t, "total = helper(data)\nprint(total)\n")
	assert.Equal(t, []string{"data", "helper", "print"}, res.Uses.Sorted())
	assert.Equal(t, []string{"helper", "print"}, res.Calls.Sorted())
}

func TestParse_RecursiveCallExcluded(t *testing.T) {
	res := parsePython(t, `def fact(n):
    return n * fact(n - 1)
`)
	assert.Empty(t, res.Calls.Sorted())
	assert.Empty(t, res.Uses.Sorted())
	assert.True(t, res.Definitions.Has("fact"))
}

func TestParse_DirectivesAreBlanked(t *testing.T) {
	res := parsePython(t, "%matplotlib inline\n!pip install seaborn\ndf = load()\n?df\n")
	assert.Equal(t, []string{"df"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"load"}, res.Uses.Sorted())
}

func TestParse_SyntaxErrorYieldsEmptyResult(t *testing.T) {
	res, err := NewPythonParser().Parse(context.Background(), "def broken(:\n    x = \n")
	require.ErrorIs(t, err, ErrSyntax)
	assert.True(t, res.IsEmpty())
}

func TestParse_EmptySource(t *testing.T) {
	res := parsePython(t, "")
	assert.True(t, res.IsEmpty())
}

func TestParse_BindingForms(t *testing.T) {
	res := parsePython(t, `import pandas as pd
import os.path
from collections import OrderedDict
a, (b, *c) = values
for i, row in enumerate(rows):
    acc += row
with open(name) as fh:
    text = fh.read()
`)
	assert.Equal(t,
		[]string{"OrderedDict", "a", "acc", "b", "c", "fh", "i", "os", "pd", "row", "text"},
		res.Definitions.Sorted())
	assert.Equal(t, []string{"enumerate", "name", "open", "rows", "values"}, res.Uses.Sorted())
}

func TestParse_ComprehensionAndLambdaLocals(t *testing.T) {
	res := parsePython(t, "squares = [n * n for n in nums if n > k]\nfn = lambda q: q + offset\n")
	assert.Equal(t, []string{"fn", "squares"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"k", "nums", "offset"}, res.Uses.Sorted())
}

func TestParse_MutationRedefinesBase(t *testing.T) {
	res := parsePython(t, `df["a"] = df["b"] * factor`+"\n")
	assert.Equal(t, []string{"df"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"factor"}, res.Uses.Sorted())
}

func TestParse_ExceptAliasIsLocal(t *testing.T) {
	res := parsePython(t, `try:
    run()
except ValueError as err:
    log(err)
`)
	assert.Equal(t, []string{"ValueError", "log", "run"}, res.Uses.Sorted())
	assert.False(t, res.Definitions.Has("err"))
}

func TestParse_AttributesAndKeywordsAreNotUses(t *testing.T) {
	res := parsePython(t, "model.fit(X, epochs=n)\n")
	assert.Equal(t, []string{"X", "model", "n"}, res.Uses.Sorted())
}

func TestParse_ClassDefinition(t *testing.T) {
	res := parsePython(t, "class Net(Base):\n    pass\n")
	assert.Equal(t, []string{"Net"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"Base"}, res.Uses.Sorted())
}

func TestParse_GlobalStatementIgnored(t *testing.T) {
	res := parsePython(t, `def g():
    global counter
    counter = 1
`)
	assert.Equal(t, []string{"counter", "g"}, res.Definitions.Sorted())
	assert.Empty(t, res.Uses.Sorted())
}

func TestParse_FStringInterpolationIsUse(t *testing.T) {
	res := parsePython(t, `msg = f"rows: {count}"`+"\n")
	assert.Equal(t, []string{"count"}, res.Uses.Sorted())
}

func TestParse_DefaultsEvaluatedOutside(t *testing.T) {
	res := parsePython(t, `def scale(v, k=factor):
    return v * k
`)
	assert.Equal(t, []string{"factor"}, res.Uses.Sorted())
}

func TestParse_InvariantsHold(t *testing.T) {
	res := parsePython(t, `def helper(x):
    return x

helper = wrap(helper)
out = helper(data)
`)
	for fn := range res.Functions {
		assert.True(t, res.Definitions.Has(fn), "function %s must be a definition", fn)
	}
	for u := range res.Uses {
		assert.False(t, res.Definitions.Has(u), "use %s must not be defined in the same cell", u)
	}
	for c := range res.Calls {
		assert.True(t, res.Uses.Has(c), "call %s must be a use", c)
	}
}

func TestParse_TypeAliasBindsName(t *testing.T) {
	res := parsePython(t, "type Alias = list[int]\ntype Pair[T] = tuple[T, T]\n")
	assert.Equal(t, []string{"Alias", "Pair"}, res.Definitions.Sorted())
	assert.NotContains(t, res.Uses.Sorted(), "Alias")
	assert.NotContains(t, res.Uses.Sorted(), "T")
	assert.Contains(t, res.Uses.Sorted(), "tuple")
}

func TestParse_MatchCaptures(t *testing.T) {
	res := parsePython(t, `match shape:
    case Point(x=a, y=0):
        area = a
    case [first, *rest] if first > limit:
        area = first
    case {"w": w, **extra}:
        area = w
    case Color.RED as c:
        area = c
`)
	assert.Equal(t, []string{"a", "area", "c", "extra", "first", "rest", "w"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"Color", "Point", "limit", "shape"}, res.Uses.Sorted())
}

func TestParse_ExceptGroupAliasIsLocal(t *testing.T) {
	res := parsePython(t, `try:
    run()
except* ValueError as e:
    log(e)
`)
	assert.Empty(t, res.Definitions.Sorted())
	assert.Equal(t, []string{"ValueError", "log", "run"}, res.Uses.Sorted())
}
