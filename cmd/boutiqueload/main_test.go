package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const quickFile = `
scenarios:
  - name: quick-smoke
    base: smoke
    stages:
      - duration: 10s
        target: 1
`

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"boutiqueload", "--log.level", "error"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	return exitErr.ExitCode()
}

func TestListCommand(t *testing.T) {
	out, err := runApp(t, "list")
	require.NoError(t, err)
	for _, name := range []string{"smoke", "load", "spike", "stress"} {
		assert.Contains(t, out, name)
	}

	out, err = runApp(t, "list", "--file", writeFile(t, "s.yaml", quickFile))
	require.NoError(t, err)
	assert.Contains(t, out, "quick-smoke")
	assert.Contains(t, out, "10s")
}

func TestValidateCommand(t *testing.T) {
	good := writeFile(t, "good.yaml", quickFile)
	out, err := runApp(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "quick-smoke ok")

	bad := writeFile(t, "bad.yaml", "scenarios:\n  - name: broken\n    stages: []\n")
	_, err = runApp(t, "validate", good, bad)
	assert.Equal(t, 1, exitCode(t, err))

	_, err = runApp(t, "validate")
	assert.Equal(t, 2, exitCode(t, err))
}

func TestExportCommand(t *testing.T) {
	t.Run("stdout", func(t *testing.T) {
		out, err := runApp(t, "export", "--target", "http://shop.test", "spike")
		require.NoError(t, err)
		assert.Contains(t, out, "// k6 spike test")
		assert.Contains(t, out, `"http://shop.test"`)
	})

	t.Run("all", func(t *testing.T) {
		dir := t.TempDir()
		_, err := runApp(t, "export", "--all", "--output", dir)
		require.NoError(t, err)
		for _, name := range []string{"smoke", "load", "spike", "stress"} {
			assert.FileExists(t, filepath.Join(dir, name+"-test.js"))
		}
	})

	t.Run("all needs output", func(t *testing.T) {
		_, err := runApp(t, "export", "--all")
		assert.Equal(t, 2, exitCode(t, err))
	})

	t.Run("unknown scenario", func(t *testing.T) {
		_, err := runApp(t, "export", "checkout")
		assert.Error(t, err)
	})
}

func TestMonitorOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("FRONTEND_URL", srv.URL)
	t.Setenv("CART_SERVICE_URL", srv.URL)

	out, err := runApp(t, "monitor", "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "healthy: 1/1 passed")
}

func TestMonitorOnce_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	t.Setenv("FRONTEND_URL", srv.URL)
	t.Setenv("CART_SERVICE_URL", srv.URL)

	out, err := runApp(t, "monitor", "--once")
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, out, "unhealthy: 0/1 passed")
}

func TestRunCommand_UnknownScenario(t *testing.T) {
	_, err := runApp(t, "run", "checkout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scenario")
}
