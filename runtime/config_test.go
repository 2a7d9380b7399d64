package runtime

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wasmhost.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
listen_port: 9120
modules_dir: /opt/modules
guest: agent.wasm
commands:
  ls: coreutils
  cat: coreutils
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenPort != 9120 {
		t.Errorf("ListenPort = %d, want 9120", cfg.ListenPort)
	}
	if cfg.ModulesDir != "/opt/modules" {
		t.Errorf("ModulesDir = %q", cfg.ModulesDir)
	}
	if cfg.Guest != "agent.wasm" {
		t.Errorf("Guest = %q", cfg.Guest)
	}
	if cfg.Commands["cat"] != "coreutils" {
		t.Errorf("Commands[cat] = %q", cfg.Commands["cat"])
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "listen_port: 1\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ModulesDir != "modules" {
		t.Errorf("ModulesDir default = %q, want modules", cfg.ModulesDir)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "listen_port: [nope\n")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestPortEnvOverride(t *testing.T) {
	t.Setenv(PortEnvVar, "7777")
	cfg, err := LoadConfig(writeConfig(t, "listen_port: 9120\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenPort != 7777 {
		t.Errorf("ListenPort = %d, want env override 7777", cfg.ListenPort)
	}
}

func TestPortEnvIgnoredWhenNotNumeric(t *testing.T) {
	t.Setenv(PortEnvVar, "not-a-port")
	cfg, err := LoadConfig(writeConfig(t, "listen_port: 9120\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenPort != 9120 {
		t.Errorf("ListenPort = %d, want 9120", cfg.ListenPort)
	}
}

func TestValidateRejectsBadPorts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for out-of-range listen_port")
	}
	cfg = DefaultConfig()
	cfg.LoopbackPort = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative loopback_port")
	}
	cfg = DefaultConfig()
	cfg.ModulesDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty modules_dir")
	}
}
