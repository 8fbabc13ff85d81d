package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cliffyan/go-research-assistant/internal/app"
	"github.com/cliffyan/go-research-assistant/internal/auth"
)

var (
	email         string
	password      string
	oauthProvider string
	oauthRedirect string
)

// loginCmd 邮箱密码登录
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Sign in with email and password and store the session locally.

The stored access token is sent as a bearer token with every search and
is refreshed automatically when it is about to expire.`,
	RunE: runLogin,
}

// signupCmd 注册账号
var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account with email and password",
	RunE:  runSignup,
}

// oauthCmd 第三方登录
var oauthCmd = &cobra.Command{
	Use:   "oauth",
	Short: "Print the third-party sign-in URL",
	RunE:  runOAuth,
}

// logoutCmd 退出登录
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the local session",
	RunE:  runLogout,
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, signupCmd} {
		c.Flags().StringVarP(&email, "email", "e", "", "Account email")
		c.Flags().StringVarP(&password, "password", "p", "", "Account password (read from stdin when empty)")
		_ = c.MarkFlagRequired("email")
	}
	oauthCmd.Flags().StringVar(&oauthProvider, "provider", "google", "OAuth provider")
	oauthCmd.Flags().StringVar(&oauthRedirect, "redirect", "", "Redirect URL after sign-in (default: auth.oauth_redirect)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	client, err := app.AuthClient(cfg, logger)
	if err != nil {
		return err
	}
	pw, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	session, err := client.SignInWithPassword(ctx, email, pw)
	if err != nil {
		return fmt.Errorf("sign in failed: %w", err)
	}
	if err := app.SessionStore(cfg).Save(session); err != nil {
		return err
	}

	logger.Debug("💾 Session saved", zap.String("path", cfg.Auth.SessionFile))
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Signed in as %s\n", displayEmail(session))
	return nil
}

func runSignup(cmd *cobra.Command, args []string) error {
	client, err := app.AuthClient(cfg, logger)
	if err != nil {
		return err
	}
	pw, err := readPassword(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	session, err := client.SignUpWithPassword(ctx, email, pw)
	if err != nil {
		return fmt.Errorf("sign up failed: %w", err)
	}
	if session == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "📧 Check %s for a confirmation link, then run research login\n", email)
		return nil
	}
	if err := app.SessionStore(cfg).Save(session); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Signed up and signed in as %s\n", displayEmail(session))
	return nil
}

func runOAuth(cmd *cobra.Command, args []string) error {
	client, err := app.AuthClient(cfg, logger)
	if err != nil {
		return err
	}
	redirect := oauthRedirect
	if redirect == "" {
		redirect = cfg.Auth.OAuthRedirect
	}
	u, err := client.SignInWithOAuth(oauthProvider, redirect)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🔗 Open this URL to sign in with %s:\n%s\n", oauthProvider, u)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := app.SessionStore(cfg).Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "👋 Signed out")
	return nil
}

// readPassword 没有通过标志传入时从输入读取一行
func readPassword(in io.Reader) (string, error) {
	if password != "" {
		return password, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password is required")
	}
	return pw, nil
}

func displayEmail(s *auth.Session) string {
	if s.User.Email != "" {
		return s.User.Email
	}
	return email
}
