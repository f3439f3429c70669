package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/ellie/compiler"
	"github.com/chazu/ellie/compiler/hash"
	"github.com/chazu/ellie/manifest"
	"github.com/chazu/ellie/pkg/bytecode"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

const mainPage uint64 = 100

var twice = hash.Function("main.ei", "twice")

type testCLI struct {
	*cli
	out, errOut *bytes.Buffer
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	m := manifest.Default()
	m.Dir = t.TempDir()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &testCLI{cli: &cli{stdout: out, stderr: errOut, m: m, format: m.Debug.Format}, out: out, errOut: errOut}
}

func assemblePages(t *testing.T, pages ...*compiler.Page) (*bytecode.Program, *bytecode.DebugInfo) {
	t.Helper()
	g, err := compiler.NewGraph(pages...)
	require.NoError(t, err)
	p, d, err := compiler.Assemble(g, pages[0].Hash)
	require.NoError(t, err)
	return p, d
}

// twicePages calls twice(21) and returns the result.
func twicePages() []*compiler.Page {
	return []*compiler.Page{
		{Hash: mainPage, Path: "main.ei", Items: []compiler.Item{
			&compiler.Function{Name: "twice", Hash: twice, Body: 101,
				Params: []compiler.Param{{Name: "n", Type: bytecode.KindInt}},
				Pos:    compiler.Span{StartLine: 1, StartCol: 1, EndLine: 3, EndCol: 2}},
			&compiler.Ret{Value: &compiler.Call{Target: twice, Args: []compiler.Expr{compiler.Lit(bytecode.Int(21))}}},
		}},
		{Hash: 101, Path: "main.ei#twice", Items: []compiler.Item{
			&compiler.Ret{Value: &compiler.Binary{Op: compiler.OpMul, Left: &compiler.VarRef{Name: "n"},
				Right: compiler.Lit(bytecode.Int(2))}},
		}},
	}
}

func writeArtifact(t *testing.T, dir, name string, pages ...*compiler.Page) string {
	t.Helper()
	p, d := assemblePages(t, pages...)
	data, err := bytecode.MarshalArtifact(p, d)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeBinary(t *testing.T, dir, name string, pages ...*compiler.Page) string {
	t.Helper()
	p, _ := assemblePages(t, pages...)
	data, err := p.MarshalBinary()
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exit exitError
	require.ErrorAs(t, err, &exit)
	return exit.code
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func TestRunCommand(t *testing.T) {
	c := newTestCLI(t)
	path := writeArtifact(t, c.m.Dir, "app.eia", twicePages()...)

	err := c.handleRun(context.Background(), []string{path})
	assert.Equal(t, 42, exitCode(t, err), "an int result is the exit code")
	assert.Equal(t, "42\n", c.out.String())
}

func TestRunPrintNative(t *testing.T) {
	c := newTestCLI(t)
	printFn := hash.Native("main.ei", "print")
	path := writeArtifact(t, c.m.Dir, "hello.eia", &compiler.Page{Hash: mainPage, Path: "main.ei", Items: []compiler.Item{
		&compiler.NativeFunction{Name: "print", Hash: printFn,
			Params: []compiler.Param{{Name: "s", Type: bytecode.KindString}}},
		&compiler.ExprStmt{Value: &compiler.Call{Target: printFn, Args: []compiler.Expr{compiler.Lit(bytecode.String("hello"))}}},
		&compiler.Ret{},
	}})

	require.NoError(t, c.handleRun(context.Background(), []string{path}))
	assert.Equal(t, "hello\n", c.out.String(), "void results are not printed")
}

func TestRunCall(t *testing.T) {
	c := newTestCLI(t)
	path := writeArtifact(t, c.m.Dir, "app.eia", twicePages()...)
	c.call = fmt.Sprint(hash.Limit(twice, bytecode.Arch64))

	require.NoError(t, c.handleRun(context.Background(), []string{path, "5"}))
	assert.Equal(t, "10\n", c.out.String())

	c.call = "not-a-hash"
	assert.ErrorContains(t, c.handleRun(context.Background(), []string{path}), "-call")
}

func TestRunPanicReport(t *testing.T) {
	c := newTestCLI(t)
	c.m.Debug.Emit = true
	div := hash.Function("main.ei", "div")
	path := writeArtifact(t, c.m.Dir, "div.eia",
		&compiler.Page{Hash: mainPage, Path: "main.ei", Items: []compiler.Item{
			&compiler.Function{Name: "div", Hash: div, Body: 101,
				Params: []compiler.Param{{Name: "a"}, {Name: "b"}},
				Pos:    compiler.Span{StartLine: 3, StartCol: 1, EndLine: 5, EndCol: 2}},
			&compiler.Ret{Value: &compiler.Call{Target: div, Args: []compiler.Expr{
				compiler.Lit(bytecode.Int(1)), compiler.Lit(bytecode.Int(0))}}},
		}},
		&compiler.Page{Hash: 101, Path: "main.ei#div", Items: []compiler.Item{
			&compiler.Ret{Value: &compiler.Binary{Op: compiler.OpDiv,
				Left: &compiler.VarRef{Name: "a"}, Right: &compiler.VarRef{Name: "b"}}},
		}},
	)

	err := c.handleRun(context.Background(), []string{path})
	assert.Equal(t, 3, exitCode(t, err))
	assert.Contains(t, c.errOut.String(), "panic: DivisionByZero")
	assert.Contains(t, c.errOut.String(), "at main.ei:3:1 in function div")
	assert.Empty(t, c.out.String())
}

func TestRunBinary(t *testing.T) {
	c := newTestCLI(t)
	path := writeBinary(t, c.m.Dir, "app.eib", twicePages()...)

	err := c.handleRun(context.Background(), []string{path})
	assert.Equal(t, 42, exitCode(t, err))

	assert.ErrorContains(t, c.handleDebugInfo([]string{path}), "no debug info")
}

func TestRunUsesManifestEntry(t *testing.T) {
	c := newTestCLI(t)
	_, _, err := c.artifactPath(nil)
	assert.ErrorContains(t, err, manifest.FileName)

	writeArtifact(t, c.m.Dir, "app.eia", twicePages()...)
	c.m.Project.Entry = "app.eia"
	err = c.handleRun(context.Background(), nil)
	assert.Equal(t, 42, exitCode(t, err))
}

func TestRunBadArtifact(t *testing.T) {
	c := newTestCLI(t)
	path := filepath.Join(c.m.Dir, "junk.eia")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0x00, 0x01}, 0o644))
	assert.Error(t, c.handleRun(context.Background(), []string{path}))
	assert.Error(t, c.handleRun(context.Background(), []string{filepath.Join(c.m.Dir, "missing.eia")}))
}

func TestManifestArchitecture(t *testing.T) {
	c := newTestCLI(t)
	path := writeArtifact(t, c.m.Dir, "app.eia", twicePages()...)
	c.m.VM.Architecture = 32

	err := c.handleRun(context.Background(), []string{path})
	assert.Equal(t, 42, exitCode(t, err), "without an ellie.toml any architecture runs")

	c.fromFile = true
	assert.ErrorContains(t, c.handleRun(context.Background(), []string{path}), "built for b64")
	assert.ErrorContains(t, c.handleDis([]string{path}), "wants b32")

	c.m.VM.Architecture = 64
	err = c.handleRun(context.Background(), []string{path})
	assert.Equal(t, 42, exitCode(t, err))
}

func TestParseArg(t *testing.T) {
	assert.Equal(t, bytecode.Int(-3), parseArg("-3"))
	assert.Equal(t, bytecode.Double(1.5), parseArg("1.5"))
	assert.Equal(t, bytecode.Bool(true), parseArg("true"))
	assert.Equal(t, bytecode.String("ellie"), parseArg("ellie"))
}

// ---------------------------------------------------------------------------
// dis, debug-info, debug
// ---------------------------------------------------------------------------

func TestDisCommand(t *testing.T) {
	c := newTestCLI(t)
	path := writeArtifact(t, c.m.Dir, "app.eia", twicePages()...)
	require.NoError(t, c.handleDis([]string{path}))
	assert.Contains(t, c.out.String(), "; ellie bytecode (b64")
	assert.Contains(t, c.out.String(), "function twice")
}

func TestDebugInfoCommand(t *testing.T) {
	c := newTestCLI(t)
	path := writeArtifact(t, c.m.Dir, "app.eia", twicePages()...)

	require.NoError(t, c.handleDebugInfo([]string{path}))
	assert.Contains(t, c.out.String(), "function:0:")
	assert.Contains(t, c.out.String(), ":main.ei:twice:")

	c.out.Reset()
	c.format = "yaml"
	require.NoError(t, c.handleDebugInfo([]string{path}))
	assert.Contains(t, c.out.String(), "twice")
	assert.NotContains(t, c.out.String(), "function:0:")

	c.format = "json"
	assert.ErrorContains(t, c.handleDebugInfo([]string{path}), "json")
}

func TestDebugCommand(t *testing.T) {
	c := newTestCLI(t)
	path := writeArtifact(t, c.m.Dir, "app.eia", twicePages()...)
	c.breaks = []string{"twice"}

	require.NoError(t, c.handleDebug(context.Background(), []string{path}))
	out := c.out.String()
	assert.Contains(t, out, "breakpoint twice at 2")
	assert.Contains(t, out, "breakpointHit")
	assert.Contains(t, out, "#1 twice pos=2")
	assert.Contains(t, out, "@0=21")
	assert.Contains(t, out, "terminated")
	assert.Contains(t, out, "result 42")

	c.breaks = []string{"nope"}
	assert.Error(t, c.handleDebug(context.Background(), []string{path}))
}

// ---------------------------------------------------------------------------
// lock
// ---------------------------------------------------------------------------

func TestLockAndVerify(t *testing.T) {
	c := newTestCLI(t)
	path := writeArtifact(t, c.m.Dir, "app.eia", twicePages()...)

	c.verify = true
	assert.ErrorContains(t, c.handleRun(context.Background(), []string{path}), "not pinned")

	require.NoError(t, c.handleLock([]string{path}))
	assert.Contains(t, c.out.String(), "locked app.eia")
	lf, err := manifest.ReadLock(c.m.LockFilePath())
	require.NoError(t, err)
	require.NotNil(t, lf.Find("app.eia"))

	c.out.Reset()
	err = c.handleRun(context.Background(), []string{path})
	assert.Equal(t, 42, exitCode(t, err))

	writeArtifact(t, c.m.Dir, "app.eia", &compiler.Page{Hash: mainPage, Path: "main.ei",
		Items: []compiler.Item{&compiler.Ret{Value: compiler.Lit(bytecode.Int(1))}}})
	assert.ErrorContains(t, c.handleRun(context.Background(), []string{path}), "does not match")
}

// ---------------------------------------------------------------------------
// Top level
// ---------------------------------------------------------------------------

func TestRunEntryPoint(t *testing.T) {
	ctx := context.Background()
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run(ctx, nil, &out, &errOut))
	assert.Contains(t, errOut.String(), "Usage: ellie")

	errOut.Reset()
	assert.Equal(t, 2, run(ctx, []string{"frobnicate"}, &out, &errOut))
	assert.Contains(t, errOut.String(), `unknown command "frobnicate"`)

	errOut.Reset()
	missing := filepath.Join(t.TempDir(), "missing.eia")
	assert.Equal(t, 1, run(ctx, []string{"-v", "0", "dis", missing}, &out, &errOut))
	assert.Contains(t, errOut.String(), "error:")
}
