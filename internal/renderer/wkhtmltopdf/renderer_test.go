package wkhtmltopdf

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeScript drops an executable shell script standing in for wkhtmltopdf.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-wkhtmltopdf")
	// #nosec G306 -- the fake renderer must be executable.
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700))
	return path
}

func scratch(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "report.html")
	require.NoError(t, os.WriteFile(in, []byte("<html><body>ok</body></html>"), 0o600))
	return in, filepath.Join(dir, "report.pdf")
}

func TestNew_MissingBinary(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BinaryPath: filepath.Join(t.TempDir(), "does-not-exist")}, nil)
	require.Error(t, err)
}

func TestRender_Success(t *testing.T) {
	t.Parallel()

	argsFile := filepath.Join(t.TempDir(), "args")
	bin := writeScript(t, `echo "$@" > `+argsFile+`
for out; do :; done
printf '%%PDF-1.4\n%%%%EOF\n' > "$out"`)
	r, err := New(Config{BinaryPath: bin, ExtraArgs: []string{"--quiet", "--encoding", "utf-8"}}, zap.NewNop())
	require.NoError(t, err)

	in, out := scratch(t)
	require.NoError(t, r.Render(context.Background(), in, out))

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-1.4"))

	// #nosec G304 -- test reads from the controlled temp directory.
	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "--quiet --encoding utf-8 "+in+" "+out, strings.TrimSpace(string(args)))
}

func TestRender_NonZeroExit(t *testing.T) {
	t.Parallel()

	bin := writeScript(t, `echo "Exit with code 1 due to network error: HostNotFoundError" >&2
exit 1`)
	r, err := New(Config{BinaryPath: bin}, nil)
	require.NoError(t, err)

	in, out := scratch(t)
	err = r.Render(context.Background(), in, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 1")
	assert.Contains(t, err.Error(), "HostNotFoundError")
}

func TestRender_NoOutput(t *testing.T) {
	t.Parallel()

	bin := writeScript(t, "exit 0")
	r, err := New(Config{BinaryPath: bin}, nil)
	require.NoError(t, err)

	in, out := scratch(t)
	require.ErrorIs(t, r.Render(context.Background(), in, out), ErrNoOutput)
}

func TestRender_EmptyOutput(t *testing.T) {
	t.Parallel()

	bin := writeScript(t, `for out; do :; done
: > "$out"`)
	r, err := New(Config{BinaryPath: bin}, nil)
	require.NoError(t, err)

	in, out := scratch(t)
	require.ErrorIs(t, r.Render(context.Background(), in, out), ErrNoOutput)
}

func TestRender_Timeout(t *testing.T) {
	t.Parallel()

	bin := writeScript(t, "exec sleep 10")
	r, err := New(Config{BinaryPath: bin, Timeout: 100 * time.Millisecond}, nil)
	require.NoError(t, err)

	in, out := scratch(t)
	start := time.Now()
	err = r.Render(context.Background(), in, out)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 8*time.Second)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", maxOutputInError+10)
	assert.Len(t, truncate(long), maxOutputInError)
	assert.Equal(t, "short", truncate("  short\n"))
}
