package commands

import (
	"errors"
	"fmt"
	"time"

	"runharvest/internal/telemetry"
	"runharvest/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	cookieCmd.AddCommand(cookieShowCmd)
	cookieCmd.AddCommand(cookiePushCmd)
	rootCmd.AddCommand(cookieCmd)
}

var cookieCmd = &cobra.Command{
	Use:   "cookie",
	Short: "Inspects and stores the session cookie used to harvest.",
}

var cookieShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Resolves the session cookie the way a harvest would and prints it.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		// showing a cookie never writes it anywhere
		cfg.Credential.SyncToRemote = false
		cookie, source := fetchCookie(cmd.Context(), cfg, telemetry.SlogAPI{})

		expires := "session"
		if cookie.Expires != nil {
			expires = time.Unix(*cookie.Expires, 0).Format(time.RFC1123)
		}
		t := newTable()
		t.AppendHeader(table.Row{"Field", "Value"})
		t.AppendRows([]table.Row{
			{"Source", source},
			{"Name", cookie.Name},
			{"Value", cookie.Redacted()},
			{"Domain", cookie.Domain},
			{"Path", cookie.Path},
			{"Expires", expires},
			{"Secure", cookie.Secure},
		})
		t.Render()
	},
}

var cookiePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Copies the session cookie from the local firefox profile into the secret store.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		if cfg.Credential.Secret == nil {
			serviceutil.Fatal("no secret store configured", errors.New("credential.secret is not set"))
		}
		cfg.Credential.DisableFirefox = false
		remote, local := credentialSources(ctx, cfg, telemetry.SlogAPI{})
		if remote == nil {
			serviceutil.Fatal("secret store unavailable", nil)
		}

		cookie, err := local.Get(ctx)
		if err != nil {
			serviceutil.Fatal("failed to read the firefox cookie jar", err)
		}
		if cookie == nil || cookie.Value == "" {
			serviceutil.Fatal("no session cookie in firefox, log in to runkeeper with firefox first", nil)
		}
		err = remote.Put(ctx, *cookie)
		if err != nil {
			serviceutil.Fatal("failed to store the cookie", err)
		}
		fmt.Printf("Stored %s=%s in %s\n", cookie.Name, cookie.Redacted(), cfg.Credential.Secret.Secret)
	},
}
