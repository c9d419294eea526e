package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c, err := Load("", t.TempDir())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	want := Default()
	if c.Sync != want.Sync {
		t.Errorf("Sync = %+v, want %+v", c.Sync, want.Sync)
	}
	if c.History != want.History || c.Dashboard != want.Dashboard {
		t.Errorf("History/Dashboard = %+v %+v", c.History, c.Dashboard)
	}
}

func TestLoadFromRepoFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	writeConfig(t, dir, `
[identity]
name = "Alice"
email = "alice@example.com"

[sync]
strategy = "theirs"
timeout = "500ms"
poll_interval = "1m"

[dashboard]
enabled = true
`)

	c, err := Load("", dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if c.Identity.Name != "Alice" || c.Identity.Email != "alice@example.com" {
		t.Errorf("Identity = %+v", c.Identity)
	}
	if c.Sync.Strategy != "theirs" || c.Sync.Timeout != 500*time.Millisecond || c.Sync.PollInterval != time.Minute {
		t.Errorf("Sync = %+v", c.Sync)
	}
	if !c.Dashboard.Enabled || c.Dashboard.Addr != Default().Dashboard.Addr {
		t.Errorf("Dashboard = %+v", c.Dashboard)
	}
	if c.Sync.MessagePrefix != Default().Sync.MessagePrefix {
		t.Errorf("unset keys should keep defaults, MessagePrefix = %q", c.Sync.MessagePrefix)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	writeConfig(t, dir, "[sync]\nstrategy = \"theirs\"\n")
	t.Setenv("GITFS_SYNC_STRATEGY", "ours")
	t.Setenv("GITFS_SYNC_TIMEOUT", "3s")
	t.Setenv("GITFS_HISTORY_ENABLED", "false")

	c, err := Load("", dir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if c.Sync.Strategy != "ours" {
		t.Errorf("Strategy = %q, want ours", c.Sync.Strategy)
	}
	if c.Sync.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", c.Sync.Timeout)
	}
	if c.History.Enabled {
		t.Error("History.Enabled should be overridden to false")
	}
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml"), ""); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown strategy", mutate: func(c *Config) { c.Sync.Strategy = "recursive" }, wantErr: "sync.strategy"},
		{name: "zero timeout", mutate: func(c *Config) { c.Sync.Timeout = 0 }, wantErr: "sync.timeout"},
		{name: "negative restarts", mutate: func(c *Config) { c.Supervisor.MaxRestarts = -1 }, wantErr: "max_restarts"},
		{name: "dashboard without addr", mutate: func(c *Config) { c.Dashboard.Enabled = true; c.Dashboard.Addr = "" }, wantErr: "dashboard.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `timeout = "2s"`) {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	c, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() of written defaults failed: %v", err)
	}
	if c.Sync != Default().Sync || c.Supervisor != Default().Supervisor {
		t.Errorf("round trip changed settings: %+v", c)
	}

	if err := WriteDefault(path, false); err == nil {
		t.Error("expected error when the file exists and force is not set")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("WriteDefault(force) failed: %v", err)
	}
}
