package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/VoiceCall/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func flagsWith(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return fs
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(flagsWith(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.PingPeriod != 54*time.Second {
		t.Fatalf("relay defaults = %+v", cfg)
	}
	if cfg.Client.RingTimeout != 0 || cfg.Client.ResumeWindow != 10*time.Second || cfg.Client.CandidateBatch != 5 {
		t.Fatalf("client defaults = %+v", cfg.Client)
	}
	if cfg.WatchLogLevel() {
		t.Fatal("watching without a file")
	}
}

func TestPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "port: 9000\nlog_level: warn\nclient:\n  ring_timeout: 45s\n  ice_servers: [\"stun:example.org:3478\"]\n")
	t.Setenv("VOICECALL_CLIENT_RESUME_WINDOW", "3s")

	cfg, err := Load(flagsWith(t, "--config", path, "--port", "9100"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("port = %d, flag should win", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.Client.RingTimeout != 45*time.Second {
		t.Fatalf("ring timeout = %v", cfg.Client.RingTimeout)
	}
	if cfg.Client.ResumeWindow != 3*time.Second {
		t.Fatalf("resume window = %v, env should win", cfg.Client.ResumeWindow)
	}
	if len(cfg.Client.ICEServers) != 1 || cfg.Client.ICEServers[0] != "stun:example.org:3478" {
		t.Fatalf("ice servers = %v", cfg.Client.ICEServers)
	}
}

func TestApplyLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ApplyLogLevel(tt.in); got != tt.want || zerolog.GlobalLevel() != tt.want {
			t.Fatalf("ApplyLogLevel(%q) = %v", tt.in, got)
		}
	}
}

func TestLogLevelHotReload(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "log_level: info\n")

	cfg, err := Load(flagsWith(t, "--config", path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ApplyLogLevel(cfg.LogLevel)
	if !cfg.WatchLogLevel() {
		t.Fatal("not watching")
	}
	writeFile(t, path, "log_level: error\n")
	testutil.Eventually(t, 3*time.Second, func() bool {
		return zerolog.GlobalLevel() == zerolog.ErrorLevel
	}, "level reloaded")
}
