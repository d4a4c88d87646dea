package scripts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/cellscope/internal/extract"
	"github.com/jward/cellscope/internal/runtime"
	"github.com/jward/cellscope/scripts"
)

// analyze runs the embedded kernel script for family over src.
func analyze(t *testing.T, family, src string) extract.Result {
	t.Helper()
	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(scripts.FS))
	res, err := rt.Analyze(context.Background(), family, family, src)
	require.NoError(t, err)
	return res
}

func TestEmbeddedScripts(t *testing.T) {
	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(scripts.FS))
	assert.True(t, rt.HasScript("bash"))
	assert.True(t, rt.HasScript("javascript"))
	assert.False(t, rt.HasScript("python"))
}

// ---------- Bash ----------

func TestBash_AssignmentsAndExpansions(t *testing.T) {
	res := analyze(t, "bash", `export OUT=/tmp/result.txt
COUNT=3
echo "processing $INPUT into ${OUT}"
`)
	assert.Equal(t, []string{"COUNT", "OUT"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"INPUT", "echo"}, res.Uses.Sorted())
	assert.Equal(t, []string{"echo"}, res.Calls.Sorted())
}

func TestBash_FunctionsAndLoops(t *testing.T) {
	res := analyze(t, "bash", `greet() {
  echo "hi"
}
for f in a b; do
  greet
  wc -l $f
done
`)
	assert.Equal(t, []string{"greet"}, res.Functions.Sorted())
	assert.Equal(t, []string{"f", "greet"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"echo", "wc"}, res.Uses.Sorted())
	assert.Equal(t, []string{"echo", "wc"}, res.Calls.Sorted())
}

func TestBash_Redirects(t *testing.T) {
	res := analyze(t, "bash", `sort < /data/in.txt > "/tmp/sorted.txt"
cat /tmp/sorted.txt >> ./logs/../run.log
ls 2> /dev/null
echo x > "$TARGET"
`)
	assert.Equal(t, []string{"/tmp/sorted.txt", "run.log"}, res.Writes.Sorted())
	assert.Equal(t, []string{"/data/in.txt"}, res.Reads.Sorted())
}

// ---------- JavaScript ----------

func TestJavaScript_DeclarationsAndUses(t *testing.T) {
	res := analyze(t, "javascript", `const total = rows.length + offset;
let [first, second] = pair;
counter = counter + 1;
class Model {}
`)
	assert.Equal(t, []string{"Model", "counter", "first", "second", "total"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"offset", "pair", "rows"}, res.Uses.Sorted())
}

func TestJavaScript_FunctionsParamsAndCalls(t *testing.T) {
	res := analyze(t, "javascript", `function scale(v, k) {
  return v * k * factor;
}
const out = data.map(x => scale(x, 2));
try { run(out); } catch (err) { report(err); }
`)
	assert.Equal(t, []string{"scale"}, res.Functions.Sorted())
	assert.Equal(t, []string{"out", "scale"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"data", "factor", "report", "run"}, res.Uses.Sorted())
	assert.Equal(t, []string{"report", "run"}, res.Calls.Sorted())
}

func TestJavaScript_FileIO(t *testing.T) {
	src := "const fs = require(\"fs\");\n" +
		"const raw = fs.readFileSync(\"data/input.json\", \"utf8\");\n" +
		"fs.writeFileSync('/tmp/out.json', raw);\n" +
		"fs.writeFileSync(`${dir}/skip.json`, raw);\n"
	res := analyze(t, "javascript", src)
	assert.Equal(t, []string{"/tmp/out.json"}, res.Writes.Sorted())
	assert.Equal(t, []string{"data/input.json"}, res.Reads.Sorted())
	assert.Equal(t, []string{"fs", "raw"}, res.Definitions.Sorted())
	assert.Contains(t, res.Uses.Sorted(), "require")
}

func TestJavaScript_NegationLineKept(t *testing.T) {
	res := analyze(t, "javascript", "let ok = a &&\n  !b;")
	assert.Equal(t, []string{"ok"}, res.Definitions.Sorted())
	assert.Equal(t, []string{"a", "b"}, res.Uses.Sorted())
}

// ---------- Malformed source ----------

func TestMalformedSourceFails(t *testing.T) {
	cases := []struct {
		family string
		src    string
	}{
		{"javascript", "let x = ((( ;;; y +"},
		{"bash", "if [ then fi (( $Z >"},
	}
	for _, tc := range cases {
		t.Run(tc.family, func(t *testing.T) {
			rt := runtime.NewRuntime("", runtime.WithRuntimeFS(scripts.FS))
			res, err := rt.Analyze(context.Background(), tc.family, tc.family, tc.src)
			require.ErrorIs(t, err, extract.ErrSyntax)
			assert.True(t, res.IsEmpty())
		})
	}
}
