package userconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingConfigReturnsEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerURL != "" || cfg.Token != "" {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := SetServer("http://localhost:8080"); err != nil {
		t.Fatalf("SetServer() error = %v", err)
	}
	if err := SaveToken("test-token"); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("ServerURL = %q, want %q", cfg.ServerURL, "http://localhost:8080")
	}
	if cfg.Token != "test-token" {
		t.Errorf("Token = %q, want %q", cfg.Token, "test-token")
	}
}

func TestSaveTokenPreservesServer(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := SetServer("http://example.com"); err != nil {
		t.Fatalf("SetServer() error = %v", err)
	}
	if err := SaveToken("abc"); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerURL != "http://example.com" {
		t.Errorf("ServerURL = %q after SaveToken, want preserved", cfg.ServerURL)
	}
}

func TestLoadTokenNotLoggedIn(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := LoadToken(); err == nil {
		t.Error("LoadToken() expected error when no token stored")
	}
}

func TestConfigFilePermissions(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := SaveToken("secret"); err != nil {
		t.Fatalf("SaveToken() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(home, ".config", "relayd", "config.json"))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 0600", perm)
	}
}
