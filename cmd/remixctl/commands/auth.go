package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"remixctl/lib/serviceutil"
	"remixctl/services/keyring"
)

var authForce *bool
var authShow *bool

func init() {
	authForce = authCmd.Flags().Bool("force", false, "Log in again even if a stored session exists.")
	authShow = authCmd.Flags().Bool("show", false, "Print the stored session instead of logging in.")
	rootCmd.AddCommand(authCmd)
}

var authCmd = &cobra.Command{
	Use:   "auth [--force] [--show]",
	Short: "Logs in through the browser and stores the session for later runs.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		ring, err := openKeyring(cfg)
		if err != nil {
			serviceutil.Fatal("failed to open keyring", err)
		}
		defer ring.Close()

		if *authShow {
			session, err := ring.LoadSession(ctx, keyring.DefaultNamespace)
			if err != nil {
				serviceutil.Fatal("no stored session", err)
			}
			at, _ := ring.UpdatedAt(ctx, keyring.DefaultNamespace)
			fmt.Printf("bearer token: %s\n", session.BearerToken)
			fmt.Printf("cookies:      %d\n", len(session.Cookies))
			fmt.Printf("updated:      %s\n", at.Format("2006-01-02 15:04:05"))
			return
		}

		if !*authForce {
			stored, err := ring.LoadSession(ctx, keyring.DefaultNamespace)
			if err == nil {
				driver := newDriver(cfg, stored.Cookies)
				refreshed, valid, err := driver.Validate(ctx)
				if err != nil {
					slog.WarnContext(ctx, "session validation failed, logging in again", "err", err)
				} else if valid {
					if refreshed.BearerToken == "" {
						refreshed.BearerToken = stored.BearerToken
					}
					if err := ring.SaveSession(ctx, keyring.DefaultNamespace, refreshed); err != nil {
						serviceutil.Fatal("failed to store session", err)
					}
					fmt.Println("Stored session is still valid.")
					return
				}
			}
		}

		if cfg.Email == "" || cfg.Password == "" {
			serviceutil.Fatal("email and password must be set in config.json5",
				fmt.Errorf("missing credentials"))
		}

		driver := newDriver(cfg, nil)
		session, err := driver.Login(ctx, cfg.Email, cfg.Password)
		if err != nil {
			serviceutil.Fatal("login failed", err)
		}
		if err := ring.SaveSession(ctx, keyring.DefaultNamespace, session); err != nil {
			serviceutil.Fatal("failed to store session", err)
		}
		fmt.Println("Logged in, session stored.")
	},
}
