package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/reglet-dev/reglet-script/domain/entities"
	domerrors "github.com/reglet-dev/reglet-script/domain/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliResult struct {
	stdout string
	err    error
}

func execute(t *testing.T, fsys afero.Fs, stdin string, args ...string) cliResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd(fsys, strings.NewReader(stdin), &stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), err: err}
}

func memProject(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	t.Setenv("SCRIPT_GRANTS_FILE", "/home/grants.yaml")
	t.Setenv("LOG_LEVEL", "error")
	mem := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(mem, name, []byte(content), 0o644))
	}
	return mem
}

func requireExit(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, code, exitErr.Code)
}

func TestSchemaCommand(t *testing.T) {
	res := execute(t, afero.NewMemMapFs(), "", "schema")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"allow_read_all"`)
	assert.Contains(t, res.stdout, `"additionalProperties": false`)
}

func TestValidatePolicyCommand(t *testing.T) {
	mem := memProject(t, map[string]string{
		"/good.yaml": "fs:\n  rules:\n    - read: [\"/data/**\"]\n",
		"/bad.yaml":  "deny: [write, teleport]\n",
	})

	res := execute(t, mem, "", "validate-policy", "/good.yaml")
	require.NoError(t, res.err)
	assert.Equal(t, "/good.yaml: valid\n", res.stdout)

	res = execute(t, mem, "", "validate-policy", "/bad.yaml")
	requireExit(t, res.err, ExitFailure)
	assert.Contains(t, res.stdout, "/bad.yaml: /deny/1:")

	res = execute(t, mem, "", "validate-policy", "/missing.yaml")
	requireExit(t, res.err, ExitUsage)
}

func TestRunCommand(t *testing.T) {
	mem := memProject(t, map[string]string{
		"/project/main.js":   `console.log("loading"); module.exports = { answer: require("./data.json").n + 1 };`,
		"/project/data.json": `{"n": 41}`,
	})

	res := execute(t, mem, "", "run", "./main.js", "--base-dir", "/project", "--allow-read", ".", "--export", "answer")
	require.NoError(t, res.err)
	assert.Equal(t, "loading\n{\n  \"answer\": 42\n}\n", res.stdout)
}

func TestRunCommand_PolicyFile(t *testing.T) {
	mem := memProject(t, map[string]string{
		"/project/main.js":     `module.exports = fs.readFileSync("/project/notes.txt");`,
		"/project/notes.txt":   "hi",
		"/project/policy.yaml": "fs:\n  rules:\n    - read: [\"/project/**\"]\n",
	})

	res := execute(t, mem, "", "run", "./main.js", "--base-dir", "/project", "--policy", "/project/policy.yaml", "--export", "default")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"default": "hi"`)
}

func TestRunCommand_InvalidPolicy(t *testing.T) {
	mem := memProject(t, map[string]string{
		"/project/main.js":     `module.exports = 1;`,
		"/project/policy.yaml": "allow_everything: true\n",
	})

	res := execute(t, mem, "", "run", "./main.js", "--base-dir", "/project", "--policy", "/project/policy.yaml")
	requireExit(t, res.err, ExitUsage)
	var se *domerrors.SchemaError
	assert.ErrorAs(t, res.err, &se)
}

func TestRunCommand_DeniedWithoutGrants(t *testing.T) {
	mem := memProject(t, map[string]string{
		"/project/main.js": `module.exports = 1;`,
	})

	res := execute(t, mem, "", "run", "./main.js", "--base-dir", "/project")
	requireExit(t, res.err, ExitDenied)
	assert.Contains(t, res.err.Error(), "read: /project/main.js")
}

func TestRunCommand_ThrownError(t *testing.T) {
	mem := memProject(t, map[string]string{
		"/project/main.js": `throw new Error("boom");`,
	})

	res := execute(t, mem, "", "run", "./main.js", "--base-dir", "/project", "--allow-read", "/project")
	requireExit(t, res.err, ExitThrew)
	assert.Contains(t, res.err.Error(), "boom")
}

func TestRunCommand_InteractiveAlwaysPersistsGrant(t *testing.T) {
	mem := memProject(t, map[string]string{
		"/project/main.js": `fs.writeFileSync("/project/out.txt", "done"); module.exports = 1;`,
	})

	res := execute(t, mem, "always\n", "run", "./main.js", "--base-dir", "/project", "--allow-read", "/project", "-i")
	require.NoError(t, res.err)

	out, err := afero.ReadFile(mem, "/project/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "done", string(out))

	saved, err := afero.ReadFile(mem, "/home/grants.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(saved), "/project/out.txt")
}

func TestRunCommand_MetricsFile(t *testing.T) {
	mem := memProject(t, map[string]string{
		"/project/main.js": `module.exports = 1;`,
	})

	res := execute(t, mem, "", "run", "./main.js", "--base-dir", "/project", "--allow-read", "/project", "--metrics-file", "/metrics.prom")
	require.NoError(t, res.err)

	data, err := afero.ReadFile(mem, "/metrics.prom")
	require.NoError(t, err)
	assert.Contains(t, string(data), `reglet_script_module_loads_total{kind="script",outcome="ready"} 1`)
	assert.Contains(t, string(data), `reglet_script_broker_decisions_total{allowed="true",capability="read"} 1`)
}

func TestRunCommand_Timeout(t *testing.T) {
	mem := memProject(t, map[string]string{
		"/project/main.js": `for (;;) {}`,
	})

	res := execute(t, mem, "", "run", "./main.js", "--base-dir", "/project", "--allow-read", "/project", "--timeout", "50ms")
	requireExit(t, res.err, ExitInterrupted)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", errors.New("x"), ExitFailure},
		{"threw", &domerrors.EngineError{Kind: domerrors.EngineThrew, Err: errors.New("x")}, ExitThrew},
		{"load", &domerrors.EngineError{Kind: domerrors.EngineLoad, Err: errors.New("x")}, ExitLoad},
		{"interrupted", &domerrors.EngineError{Kind: domerrors.EngineInterrupted, Err: context.Canceled}, ExitInterrupted},
		{"startup", &domerrors.EngineError{Kind: domerrors.EngineStartup, Err: errors.New("x")}, ExitUsage},
		{"denial inside throw", &domerrors.EngineError{
			Kind: domerrors.EngineThrew,
			Err:  &domerrors.PermissionDeniedError{Capability: entities.CapabilityWrite, Path: "/x"},
		}, ExitDenied},
		{"fetch denied", &domerrors.EngineError{
			Kind: domerrors.EngineLoad,
			Err:  &domerrors.FetchError{Kind: domerrors.FetchDenied, Identity: "/x.js"},
		}, ExitDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestMissingGrants(t *testing.T) {
	assert.Nil(t, missingGrants(errors.New("x")))

	got := missingGrants(&domerrors.PermissionDeniedError{Capability: entities.CapabilityWrite, Path: "/p/out.txt"})
	require.NotNil(t, got)
	require.NotNil(t, got.FS)
	assert.Equal(t, []string{"/p/out.txt"}, got.FS.Rules[0].Write)
	assert.Empty(t, got.FS.Rules[0].Read)

	got = missingGrants(&domerrors.PermissionDeniedError{Capability: entities.CapabilityReadAll})
	assert.True(t, got.AllowReadAll)

	got = missingGrants(&domerrors.PermissionDeniedError{Capability: entities.CapabilityReadBlind, Path: "/p"})
	assert.True(t, got.AllowBlind)
	assert.Equal(t, []string{"/p"}, got.FS.Rules[0].Read)
}
