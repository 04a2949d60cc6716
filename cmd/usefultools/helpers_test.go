package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usefultools/toolbox/internal/domain/registry"
	"github.com/usefultools/toolbox/internal/testutil"
)

// Commands share package-level flag variables, so tests in this package
// run sequentially.

func resetFlags() {
	dataDirFlag = ""
	outputFormat = formatTable
	verbose = false
	registryRefresh = false
	serveSocket = ""
	serveMetricsAddr = ""
	statusSocket = ""
	mcpHTTP = ""
}

// executeCommand runs the root command with args and returns its stdout.
func executeCommand(ctx context.Context, args ...string) (string, error) {
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

// env is a data directory configured against a fake registry.
type env struct {
	reg     *testutil.FakeRegistry
	dataDir string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	t.Setenv("USEFULTOOLS_DATA_DIR", "")
	t.Setenv("USEFULTOOLS_LOG_LEVEL", "error")

	e := &env{reg: testutil.NewFakeRegistry(t), dataDir: t.TempDir()}
	_, err := e.run(t, "config", "set", e.reg.URL())
	require.NoError(t, err)
	return e
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeCommand(context.Background(), append(args, "--data-dir", e.dataDir)...)
}

func (e *env) publish(t *testing.T, version string, ids ...string) {
	t.Helper()

	entries := make([]map[string]any, 0, len(ids))
	bundles := map[string]string{}
	for _, id := range ids {
		entries = append(entries, testutil.ManifestEntry(id, version, id+".mjs"))
		bundles[id+".mjs"] = "export default '" + id + "'"
	}
	e.reg.AddPackage(registry.OfficialPackage, version, testutil.PluginTarball(t, testutil.Manifest(t, entries...), bundles))
	e.reg.SetSearch("usefultools-plugin", registry.OfficialPackage)
}

func decodeJSON[T any](t *testing.T, data string) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal([]byte(data), &v))
	return v
}
