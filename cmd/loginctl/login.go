package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/spf13/cobra"

	"github.com/BradenHooton/loginpopup/internal/popupclient"
)

var (
	loginAjaxURL  string
	loginUser     string
	loginRemember bool
	loginTimeout  time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login <page-url>",
	Short: "Log in through the popup endpoint without a browser",
	Long: `login opens the popup for page-url the way the browser script does:
the page URL must carry the sl=1 or show_login=1 trigger. The status check and
the authenticate call go to --ajax-url, which defaults to /ajax on the page's origin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ajaxURL := loginAjaxURL
		if ajaxURL == "" {
			derived, err := defaultAjaxURL(args[0])
			if err != nil {
				return err
			}
			ajaxURL = derived
		}

		transport, err := popupclient.NewHTTPTransport(ajaxURL, loginTimeout)
		if err != nil {
			return err
		}

		password, err := promptPassword("Password for " + loginUser)
		if err != nil {
			return err
		}

		creds := popupclient.Credentials{Login: loginUser, Password: password, Remember: loginRemember}
		return runLogin(cmd.Context(), cmd.OutOrStdout(), transport, args[0], creds, newLogger())
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginAjaxURL, "ajax-url", "", "Popup ajax endpoint (default: <origin>/ajax)")
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "Username or email (required)")
	loginCmd.Flags().BoolVar(&loginRemember, "remember", false, "Request a persistent session")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 10*time.Second, "Per-request timeout")
	_ = loginCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(loginCmd)
}

func defaultAjaxURL(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid page url %q", pageURL)
	}
	return u.Scheme + "://" + u.Host + "/ajax", nil
}

// runLogin drives one popup from status check to redirect and reports the
// outcome on w.
func runLogin(ctx context.Context, w io.Writer, transport popupclient.Transport, pageURL string, creds popupclient.Credentials, logger *slog.Logger) error {
	config := popupclient.DefaultConfig()
	config.RevealDelay = 0

	controller := popupclient.NewController(transport, nil, config, logger)
	defer controller.Close()

	opened, err := controller.Start(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	if !opened {
		return errors.New("page url has no sl=1 or show_login=1 trigger")
	}

	view := controller.View()
	if view.State == popupclient.StateShowMessage {
		fmt.Fprintln(w, view.Message)
		return nil
	}
	if view.State != popupclient.StateFormVisible {
		return fmt.Errorf("popup is %s, expected the login form", view.State)
	}

	if err := controller.Submit(ctx, creds); err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}

	view = controller.View()
	if view.State != popupclient.StateRedirecting {
		return fmt.Errorf("login failed: %s", plainText(view.Error))
	}

	fmt.Fprintf(w, "redirect: %s\n", view.RedirectTarget)
	return nil
}

// plainText drops the markup of server messages for terminal output
func plainText(s string) string {
	return html.UnescapeString(bluemonday.StrictPolicy().Sanitize(s))
}
