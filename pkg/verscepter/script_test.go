package verscepter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptExecutor(t *testing.T) {
	version := VersionRecord{Version: "18.2.0", Source: Local, State: Installed}

	values := []struct {
		script   string
		expected RunResult
	}{
		{"exit 0", Success},
		{"exit 1", Failure},
		{"exit 42", Failure},
		{`[ "$VERSION" = "18.2.0" ] && [ "$VERSION_SOURCE" = "local" ] && [ "$VERSION_STATE" = "installed" ]`, Success},
		{`[ "$EXTRA" = "value" ]`, Success},
	}

	for _, v := range values {
		executor := &ScriptExecutor{
			Script:  v.script,
			Env:     map[string]string{"EXTRA": "value"},
			Timeout: 10 * time.Second,
		}

		res, err := executor.Run(context.Background(), version)
		assert.NoErrorf(t, err, "Script %q returned an error", v.script)
		assert.Equalf(t, v.expected, res, "Wrong result for script %q", v.script)
	}
}

func TestScriptExecutorTimeout(t *testing.T) {
	executor := &ScriptExecutor{
		Script:  "sleep 10",
		Timeout: 100 * time.Millisecond,
	}

	start := time.Now()
	res, err := executor.Run(context.Background(), VersionRecord{Version: "1.0.0"})
	assert.NoError(t, err)
	assert.Equal(t, Timeout, res)
	assert.Less(t, time.Since(start), 9*time.Second)
}

// orphanScript starts a long running child, records its pid in $PIDFILE and waits for it
const orphanScript = `sleep 37 & echo $! > "$PIDFILE"; wait`

// readPid reads the pid written by orphanScript
func readPid(t *testing.T, path string) int {
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	require.NoError(t, err)
	return pid
}

// processAlive reports whether pid refers to a running process. Zombies count as dead
func processAlive(pid int) bool {
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// The state follows the parenthesised command name
	fields := strings.Fields(string(stat[bytes.LastIndexByte(stat, ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z"
}

func skipWithoutProcfs(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}
}

func TestScriptExecutorTimeoutKillsChildren(t *testing.T) {
	skipWithoutProcfs(t)

	pidFile := filepath.Join(t.TempDir(), "pid")
	executor := &ScriptExecutor{
		Script:  orphanScript,
		Env:     map[string]string{"PIDFILE": pidFile},
		Timeout: 500 * time.Millisecond,
	}

	start := time.Now()
	res, err := executor.Run(context.Background(), VersionRecord{Version: "1.0.0"})
	assert.NoError(t, err)
	assert.Equal(t, Timeout, res)
	assert.Less(t, time.Since(start), GracePeriod, "The timeout wasn't honoured")

	pid := readPid(t, pidFile)
	assert.Eventually(t, func() bool { return !processAlive(pid) }, 2*time.Second, 20*time.Millisecond, "Child %d outlived the run", pid)
}

func TestScriptExecutorCancelled(t *testing.T) {
	executor := &ScriptExecutor{
		Script:  "sleep 10",
		Timeout: time.Minute,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := executor.Run(ctx, VersionRecord{Version: "1.0.0"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Invalid, res, "A cancelled run must not be classified")
}

func TestScriptExecutorCopiesSnippet(t *testing.T) {
	snippet := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(snippet, "main.txt"), []byte("expected"), 0644))

	executor := &ScriptExecutor{
		// Modifying the copy must not touch the original snippet
		Script:      `[ "$(cat main.txt)" = "expected" ] && echo changed > main.txt`,
		SnippetPath: snippet,
		Timeout:     10 * time.Second,
	}

	for i := 0; i < 2; i++ {
		res, err := executor.Run(context.Background(), VersionRecord{Version: "1.0.0"})
		assert.NoError(t, err)
		assert.Equal(t, Success, res)
	}

	content, err := os.ReadFile(filepath.Join(snippet, "main.txt"))
	require.NoError(t, err)
	assert.Equal(t, "expected", string(content))
}

func TestScriptExecutorMissingSnippet(t *testing.T) {
	executor := &ScriptExecutor{
		Script:      "exit 0",
		SnippetPath: filepath.Join(t.TempDir(), "missing"),
	}

	res, err := executor.Run(context.Background(), VersionRecord{Version: "1.0.0"})
	assert.Error(t, err)
	assert.Equal(t, Invalid, res)
}
