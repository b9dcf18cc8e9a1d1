package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/tickroute/internal/config"
	"github.com/mattjoyce/tickroute/internal/doctor"
	"github.com/mattjoyce/tickroute/internal/lock"
	"github.com/mattjoyce/tickroute/internal/log"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)
	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// useLogger routes the package logger to l for the duration of the test.
func useLogger(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := log.Get()
	log.SetLogger(l)
	t.Cleanup(func() { log.SetLogger(prev) })
}

// testConfig is a fast, bounded route with its lock in a temp dir.
func testConfig(t *testing.T, repeat int) *config.Config {
	t.Helper()
	cfg, err := config.Parse(nil)
	require.NoError(t, err)
	cfg.State.LockPath = filepath.Join(t.TempDir(), "tickroute.lock")
	cfg.Timer.Every = "10ms"
	cfg.Timer.RepeatCount = repeat
	return cfg
}

type logLine struct {
	Msg   string `json:"msg"`
	Level string `json:"level"`
	Calls int64  `json:"calls"`
	RunID string `json:"run_id"`
}

func parseLogs(t *testing.T, buf *bytes.Buffer) []logLine {
	t.Helper()
	var lines []logLine
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var l logLine
		require.NoError(t, json.Unmarshal([]byte(raw), &l), raw)
		lines = append(lines, l)
	}
	return lines
}

func TestRunCLIUsage(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI(nil) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "tickroute <noun> <action>")

	code, stdout, _ = captureOutputWithExitCode(t, func() int { return runCLI([]string{"help"}) })
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "system start")

	code, _, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"bogus"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: bogus")
}

func TestRunCLINounHelp(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int { return runCLI([]string{"system", "help"}) })
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "system <start|watch>")

	code, _, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"config"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "config <check|show>")

	code, stdout, _ = captureOutputWithExitCode(t, func() int { return runCLI([]string{"system", "start", "--help"}) })
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "tickroute system start")

	code, _, stderr = captureOutputWithExitCode(t, func() int { return runCLI([]string{"config", "lock"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown config action: lock")
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef0123", "2026-01-02T03:04:05+10:00")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int { return runCLI([]string{"version", "--json"}) })
	require.Equal(t, 0, code, stderr)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "0123456789ab", info.Commit)
	assert.Equal(t, "2026-01-01T17:04:05Z", info.BuildTime)
}

func TestRunVersionRejectsArgs(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int { return runVersion([]string{"extra"}) })
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Usage: tickroute version")
}

func TestConfigCheck(t *testing.T) {
	valid := writeConfig(t, "timer:\n  every: 250ms\n  timeout: 100ms\n")
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", valid})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Configuration valid.")
	assert.Contains(t, stdout, "blake3: ")

	invalid := writeConfig(t, "timer:\n  every: soon\n")
	code, stdout, _ = captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "check", "--config", invalid})
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "Configuration invalid")
	assert.Contains(t, stdout, "ERROR [load]")
}

func TestConfigCheckStrictWarnings(t *testing.T) {
	path := writeConfig(t, "route:\n  observe: fieldThree\ntimer:\n  timeout: 50ms\n")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", path})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "WARN  [route] route.observe")

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", path, "--strict"})
	})
	assert.Equal(t, 1, code)
}

func TestConfigCheckJSON(t *testing.T) {
	invalid := writeConfig(t, "timer:\n  every: 100ms\n  timeout: 1s\n")
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runConfigCheck([]string{"--config", invalid, "--json"})
	})
	assert.Equal(t, 1, code)

	var result doctor.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "timeout")
}

func TestConfigShowAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "route:\n  name: demo\n")
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"config", "show", "--config", path})
	})
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "name: demo")
	assert.Contains(t, stdout, "every: 100ms")
	assert.Contains(t, stdout, "two-{seq}")
	assert.Contains(t, stdout, "observe: fieldTwo")
}

func TestConfigShowJSONUsesConfigKeys(t *testing.T) {
	path := writeConfig(t, "service:\n  log_level: debug\n")
	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigShow([]string{"--config", path, "--json"})
	})
	require.Equal(t, 0, code, stderr)

	var out map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "debug", out["service"]["log_level"])
	assert.Equal(t, "100ms", out["timer"]["every"])
	assert.Equal(t, true, out["timer"]["fixed_rate"])
	assert.NotContains(t, stdout, "SourcePath")
	assert.NotContains(t, stdout, "LogLevel")
}

func TestRunStopsAfterRepeatCount(t *testing.T) {
	cfg := testConfig(t, 5)

	var buf bytes.Buffer
	useLogger(t, slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	code := run(context.Background(), cfg)
	require.Equal(t, 0, code)

	lines := parseLogs(t, &buf)
	var observed []string
	var calls []int64
	for _, l := range lines {
		assert.NotEmpty(t, l.RunID)
		if strings.HasPrefix(l.Msg, "two-") {
			observed = append(observed, l.Msg)
		}
		if l.Msg == "calls" {
			calls = append(calls, l.Calls)
		}
	}
	assert.Equal(t, []string{"two-1", "two-2", "two-3", "two-4", "two-5"}, observed)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, calls)

	_, err := os.Stat(cfg.State.LockPath)
	require.NoError(t, err)
	l, err := lock.AcquirePIDLock(cfg.State.LockPath)
	require.NoError(t, err, "lock must be released when run returns")
	require.NoError(t, l.Release())
}

func TestRunReturnsOnCancel(t *testing.T) {
	cfg := testConfig(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(80*time.Millisecond, cancel)

	useLogger(t, slog.New(slog.NewTextHandler(io.Discard, nil)))
	done := make(chan int, 1)
	go func() { done <- run(ctx, cfg) }()

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRunFailsWhenLockHeld(t *testing.T) {
	cfg := testConfig(t, 1)

	held, err := lock.AcquirePIDLock(cfg.State.LockPath)
	require.NoError(t, err)
	defer held.Release()

	var buf bytes.Buffer
	useLogger(t, slog.New(slog.NewJSONHandler(&buf, nil)))
	code := run(context.Background(), cfg)
	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "failed to acquire PID lock")
	assert.NotContains(t, buf.String(), "two-1")
}

func TestRunFailsOnInvalidPeriod(t *testing.T) {
	cfg := testConfig(t, 1)
	cfg.Timer.Every = "never"

	useLogger(t, slog.New(slog.NewTextHandler(io.Discard, nil)))
	code := run(context.Background(), cfg)
	assert.Equal(t, 1, code)
}

func TestRunWithAPIShutsDownWithTimer(t *testing.T) {
	cfg := testConfig(t, 3)
	cfg.API.Enabled = true
	cfg.API.Listen = "127.0.0.1:0"
	cfg.API.Auth.APIKey = "test-key"

	var buf bytes.Buffer
	useLogger(t, slog.New(slog.NewJSONHandler(&buf, nil)))
	done := make(chan int, 1)
	go func() { done <- run(context.Background(), cfg) }()

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after the timer finished")
	}
	assert.Contains(t, buf.String(), "API server enabled")
	assert.Contains(t, buf.String(), "timer finished")
}
