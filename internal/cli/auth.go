package cli

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/dl-alexandre/savegem/internal/auth"
	"github.com/dl-alexandre/savegem/internal/config"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Sign in to Google Drive and manage the cached credential",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with Google",
	Long:  "Run the OAuth consent flow in a browser and cache the resulting credential",
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the cached credential",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE:  runAuthStatus,
}

var (
	authNoBrowser    bool
	authClientID     string
	authClientSecret string
)

func init() {
	authLoginCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "Print the consent URL and read the code from stdin")
	authLoginCmd.Flags().StringVar(&authClientID, "client-id", "", "OAuth client ID")
	authLoginCmd.Flags().StringVar(&authClientSecret, "client-secret", "", "OAuth client secret")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	configDir, err := config.GetConfigDir()
	if err != nil {
		return err
	}
	mgr := newAuthManager(configDir)
	if authClientID != "" && authClientSecret != "" {
		mgr.SetOAuthConfig(authClientID, authClientSecret, utils.DefaultScopes)
	}
	if mgr.OAuthConfig() == nil {
		return out.WriteError("auth.login", utils.NewCLIError(utils.ErrCodeAuthClientMissing,
			"OAuth client ID and secret required. Set --client-id/--client-secret or SAVEGEM_CLIENT_ID/SAVEGEM_CLIENT_SECRET").Build())
	}
	if warning := mgr.StorageWarning(); warning != "" {
		out.Log("%s", warning)
	}

	creds, err := mgr.Login(cmd.Context(), flags.Profile, openBrowser, auth.LoginOptions{
		NoBrowser: authNoBrowser,
		In:        os.Stdin,
		Out:       os.Stderr,
	})
	if err != nil {
		return out.WriteError("auth.login", utils.NewCLIError(utils.ErrCodeAuthRequired, err.Error()).Build())
	}

	out.Log("Successfully authenticated!")
	return out.WriteSuccess("auth.login", map[string]interface{}{
		"profile":        flags.Profile,
		"scopes":         creds.Scopes,
		"expiry":         creds.ExpiryDate.Format(time.RFC3339),
		"storageBackend": mgr.StorageBackend(),
	})
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	configDir, err := config.GetConfigDir()
	if err != nil {
		return err
	}
	mgr := newAuthManager(configDir)
	if err := mgr.DeleteCredentials(flags.Profile); err != nil {
		return out.WriteError("auth.logout", utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to remove credentials for profile '%s': %v", flags.Profile, err)).Build())
	}

	out.Log("Credentials removed for profile: %s", flags.Profile)
	return out.WriteSuccess("auth.logout", map[string]interface{}{
		"profile": flags.Profile,
		"status":  "logged_out",
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	configDir, err := config.GetConfigDir()
	if err != nil {
		return err
	}
	mgr := newAuthManager(configDir)
	if warning := mgr.StorageWarning(); warning != "" {
		out.Verbose("%s", warning)
	}

	creds, err := mgr.LoadCredentials(flags.Profile)
	if err != nil {
		return out.WriteSuccess("auth.status", map[string]interface{}{
			"profile":        flags.Profile,
			"authenticated":  false,
			"storageBackend": mgr.StorageBackend(),
		})
	}

	return out.WriteSuccess("auth.status", map[string]interface{}{
		"profile":        flags.Profile,
		"authenticated":  mgr.IsAuthenticated(flags.Profile),
		"scopes":         creds.Scopes,
		"expiry":         creds.ExpiryDate.Format(time.RFC3339),
		"needsRefresh":   mgr.NeedsRefresh(creds),
		"storageBackend": mgr.StorageBackend(),
	})
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}
