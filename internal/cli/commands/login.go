package commands

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/relayd-dev/relayd/internal/cli/client"
	"github.com/relayd-dev/relayd/internal/cli/userconfig"
)

// NewLoginCmd creates the login command
func NewLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a Relayd server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set RELAYD_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set RELAYD_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(email, password string) error {
	// Check for environment variables (useful for CI/CD)
	if email == "" {
		email = os.Getenv("RELAYD_EMAIL")
	}
	if password == "" {
		password = os.Getenv("RELAYD_PASSWORD")
	}

	if email == "" {
		return fmt.Errorf("email is required (use --email flag or RELAYD_EMAIL env var)")
	}

	serverURL, err := resolveServerURL()
	if err != nil {
		return err
	}

	// Prompt for password if not provided via flag or env var
	if password == "" {
		// Check if stdin is a terminal (not piped)
		if term.IsTerminal(int(syscall.Stdin)) {
			fmt.Print("Password: ")
			bytePassword, err := term.ReadPassword(int(syscall.Stdin))
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = string(bytePassword)
			fmt.Println() // New line after password input
		} else {
			return fmt.Errorf("password is required in non-interactive mode (use --password flag or RELAYD_PASSWORD env var)")
		}
	}

	apiClient := client.New(serverURL)

	fmt.Printf("Logging in to %s...\n", serverURL)

	loginResp, err := apiClient.Login(email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := userconfig.SaveToken(loginResp.Token); err != nil {
		return fmt.Errorf("failed to save authentication token: %w", err)
	}

	fmt.Println("✓ Login successful!")
	fmt.Printf("  User: %s (%s)\n", loginResp.User.Name, loginResp.User.Email)
	if loginResp.User.IsAdmin {
		fmt.Println("  Role: Admin")
	}

	return nil
}

// resolveServerURL returns the configured server URL or an instructive error
func resolveServerURL() (string, error) {
	cfg, err := userconfig.Load()
	if err != nil {
		return "", err
	}
	if cfg.ServerURL == "" {
		return "", fmt.Errorf("no server configured. Run 'relayd use-server <url>' first")
	}
	return cfg.ServerURL, nil
}
