package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "DRYDOCK_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "workitems")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("DRYDOCK_TEST_ENV_LOAD")
	t.Cleanup(func() { _ = os.Unsetenv("DRYDOCK_TEST_ENV_LOAD") })

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("DRYDOCK_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded from repo root, got %q", got)
	}
}

func TestWorkItemIDOptions_Validate(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		o := WorkItemIDOptions{TimeZone: "Local", FallbackPrefix: " WI ", InsertRetries: 5, ProgressEvery: 10, SampleSize: 5}
		require.NoError(t, o.Validate())
		require.Equal(t, "WI", o.FallbackPrefix)
		require.Equal(t, time.Local, o.Location())
	})

	t.Run("named zone", func(t *testing.T) {
		o := WorkItemIDOptions{TimeZone: "UTC", FallbackPrefix: "WI", InsertRetries: 1, ProgressEvery: 1}
		require.NoError(t, o.Validate())
		require.Equal(t, "UTC", o.Location().String())
	})

	cases := map[string]WorkItemIDOptions{
		"unknown zone":     {TimeZone: "Mars/Olympus", FallbackPrefix: "WI", InsertRetries: 1, ProgressEvery: 1},
		"empty prefix":     {TimeZone: "UTC", FallbackPrefix: " ", InsertRetries: 1, ProgressEvery: 1},
		"digit prefix":     {TimeZone: "UTC", FallbackPrefix: "W1", InsertRetries: 1, ProgressEvery: 1},
		"slash prefix":     {TimeZone: "UTC", FallbackPrefix: "W/", InsertRetries: 1, ProgressEvery: 1},
		"zero retries":     {TimeZone: "UTC", FallbackPrefix: "WI", InsertRetries: 0, ProgressEvery: 1},
		"zero progress":    {TimeZone: "UTC", FallbackPrefix: "WI", InsertRetries: 1, ProgressEvery: 0},
		"negative samples": {TimeZone: "UTC", FallbackPrefix: "WI", InsertRetries: 1, ProgressEvery: 1, SampleSize: -1},
	}
	for name, o := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, o.Validate())
		})
	}
}

func TestWorkItemIDOptions_LocationDefaultsToLocal(t *testing.T) {
	var o WorkItemIDOptions
	require.Equal(t, time.Local, o.Location())
}

func TestWorkItemIDsFromEnv(t *testing.T) {
	t.Setenv("WORKITEM_ID_TIMEZONE", "UTC")
	t.Setenv("WORKITEM_ID_FALLBACK_PREFIX", "LEG")
	t.Setenv("WORKITEM_ID_PROGRESS_EVERY", "25")

	o, err := WorkItemIDsFromEnv()
	require.NoError(t, err)
	require.Equal(t, "UTC", o.Location().String())
	require.Equal(t, "LEG", o.FallbackPrefix)
	require.Equal(t, 25, o.ProgressEvery)
	require.Equal(t, 5, o.InsertRetries)
	require.Equal(t, "backups", o.BackupDir)

	t.Setenv("WORKITEM_ID_INSERT_RETRIES", "0")
	_, err = WorkItemIDsFromEnv()
	require.Error(t, err)
}

func TestRateLimitOptions_Validate(t *testing.T) {
	require.NoError(t, (&RateLimitOptions{GlobalRPS: 10, Storage: "memory"}).Validate())
	require.NoError(t, (&RateLimitOptions{GlobalRPS: 10, Storage: "redis", RedisURL: "redis://localhost:6379/0"}).Validate())

	require.Error(t, (&RateLimitOptions{GlobalRPS: 0, Storage: "memory"}).Validate())
	require.Error(t, (&RateLimitOptions{GlobalRPS: 10, Storage: "disk"}).Validate())
	require.Error(t, (&RateLimitOptions{GlobalRPS: 10, Storage: "redis"}).Validate())
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
