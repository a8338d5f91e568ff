package commands

import (
	"os"
	"testing"

	"github.com/relayd-dev/relayd/internal/cli/userconfig"
)

func TestLoginCommand_Structure(t *testing.T) {
	cmd := NewLoginCmd()

	if cmd.Use != "login" {
		t.Errorf("expected Use to be 'login', got %s", cmd.Use)
	}

	if cmd.Flags().Lookup("email") == nil {
		t.Error("expected --email flag to exist")
	}
	if cmd.Flags().Lookup("password") == nil {
		t.Error("expected --password flag to exist")
	}
}

func TestLoginCommand_MissingEmail(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	os.Unsetenv("RELAYD_EMAIL")
	os.Unsetenv("RELAYD_PASSWORD")

	err := runLogin("", "password123")
	if err == nil {
		t.Fatal("expected error when email is missing, got nil")
	}

	expectedError := "email is required (use --email flag or RELAYD_EMAIL env var)"
	if err.Error() != expectedError {
		t.Errorf("expected error '%s', got '%s'", expectedError, err.Error())
	}
}

func TestLoginCommand_NoServerConfigured(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	err := runLogin("test@example.com", "password123")
	if err == nil {
		t.Fatal("expected error when no server is configured, got nil")
	}
}

func TestLoginCommand_EnvVarCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("RELAYD_EMAIL", "env@example.com")
	t.Setenv("RELAYD_PASSWORD", "envpass")

	if err := userconfig.SetServer("http://127.0.0.1:1"); err != nil {
		t.Fatalf("SetServer() error = %v", err)
	}

	// The call fails at the network stage, not at email validation
	err := runLogin("", "")
	if err != nil && err.Error() == "email is required (use --email flag or RELAYD_EMAIL env var)" {
		t.Error("runLogin should have read email from RELAYD_EMAIL env var")
	}
}

func TestUseServerCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd := NewUseServerCmd()
	cmd.SetArgs([]string{"http://localhost:8080"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("use-server failed: %v", err)
	}

	cfg, err := userconfig.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("ServerURL = %q, want %q", cfg.ServerURL, "http://localhost:8080")
	}
}
