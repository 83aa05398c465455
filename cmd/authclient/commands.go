package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-auth-client/gateway"
	"github.com/jrsteele09/go-auth-client/idtoken"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/session"
)

// withSession opens the session, waits for startup reconciliation and runs fn.
func (c *cli) withSession(cmd *cobra.Command, verify bool, fn func(ctx context.Context, d *deps) error) error {
	ctx := cmd.Context()
	d, err := c.open(ctx, verify)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.manager.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx, d)
}

// readSecret returns value, or a line read from in when value is empty.
func readSecret(cmd *cobra.Command, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "[readSecret]")
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no value entered")
	}
	return line, nil
}

func newSignUpCmd(c *cli) *cobra.Command {
	var email, password, fullName string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readSecret(cmd, password, "Password: ")
			if err != nil {
				return err
			}
			d, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer d.Close()

			req := gateway.SignUpRequest{Email: email, Password: pw}
			if fullName != "" {
				req.FullName = utils.Ptr(fullName)
			}
			resp, err := d.manager.SignUp(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			if !resp.UserConfirmed {
				fmt.Fprintf(cmd.OutOrStdout(), "Confirm with: authclient confirm --email %s --code <code>\n", email)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	cmd.Flags().StringVar(&fullName, "full-name", "", "Full name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newConfirmCmd(c *cli) *cobra.Command {
	var email, code string
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a new account with the emailed code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer d.Close()

			resp, err := d.manager.ConfirmSignUp(cmd.Context(), gateway.ConfirmSignUpRequest{Email: email, ConfirmationCode: code})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&code, "code", "", "Confirmation code")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newSignInCmd(c *cli) *cobra.Command {
	var email, password string
	var remember, forget bool
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, true, func(ctx context.Context, d *deps) error {
				if email == "" {
					remembered, ok, err := d.manager.RememberedEmail(ctx)
					if err != nil {
						return err
					}
					if !ok {
						return errors.New("--email is required")
					}
					email = remembered
				}
				pw, err := readSecret(cmd, password, "Password for "+email+": ")
				if err != nil {
					return err
				}

				user, err := d.manager.SignIn(ctx, email, pw)
				if err != nil {
					return err
				}

				switch {
				case forget:
					err = d.manager.RememberEmail(ctx, "")
				case remember:
					err = d.manager.RememberEmail(ctx, email)
				}
				if err != nil {
					c.logger.Warn().Err(err).Msg("Could not update remembered email")
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>\n", user.DisplayName(), user.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address (defaults to the remembered one)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	cmd.Flags().BoolVar(&remember, "remember", false, "Remember the email for next time")
	cmd.Flags().BoolVar(&forget, "forget", false, "Forget any remembered email")
	cmd.MarkFlagsMutuallyExclusive("remember", "forget")
	return cmd
}

func newSignOutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Clear the stored session and tell the identity service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, false, func(ctx context.Context, d *deps) error {
				if err := d.manager.SignOut(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newWhoAmICmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, false, func(ctx context.Context, d *deps) error {
				printSession(ctx, cmd.OutOrStdout(), d)
				return nil
			})
		},
	}
}

func newRefreshCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch the profile; signs out if the service rejects the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, false, func(ctx context.Context, d *deps) error {
				if err := d.manager.RefreshUser(ctx); err != nil {
					return err
				}
				printSession(ctx, cmd.OutOrStdout(), d)
				return nil
			})
		},
	}
}

func newRefreshTokenCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-token",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withSession(cmd, false, func(ctx context.Context, d *deps) error {
				if !d.manager.IsAuthenticated(ctx) {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				if err := d.manager.RefreshTokens(ctx); err != nil {
					return err
				}
				printSession(ctx, cmd.OutOrStdout(), d)
				return nil
			})
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the identity service and the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := c.open(ctx, false)
			if err != nil {
				return err
			}
			defer d.Close()

			out := cmd.OutOrStdout()
			health, err := d.gateway.Health(ctx)
			if err != nil {
				fmt.Fprintf(out, "Identity service: unavailable (%v)\n", err)
			} else {
				fmt.Fprintf(out, "Identity service: %s\n", health.Status)
			}

			rec, ok, err := d.store.Load(ctx)
			switch {
			case err != nil:
				fmt.Fprintf(out, "Session: unreadable (%v)\n", err)
			case !ok:
				fmt.Fprintln(out, "Session: none")
			default:
				fmt.Fprintf(out, "Session: valid until %s\n", rec.ExpiresAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

// describeError renders a command failure for the terminal. Gateway failures
// get a hint about what the user can do next.
func describeError(err error) string {
	kind, ok := gateway.KindOf(err)
	if !ok {
		return err.Error()
	}
	var gErr *gateway.Error
	_ = errors.As(err, &gErr)
	switch kind {
	case gateway.KindInvalidCredentials:
		if gErr.Message == "" {
			return "Rejected by the identity service"
		}
		return "Rejected by the identity service: " + gErr.Message
	case gateway.KindNetworkFailure:
		return "Could not reach the identity service, check --gateway-url and try again"
	case gateway.KindMalformedResponse:
		return "The identity service sent a response the client could not use"
	default:
		return err.Error()
	}
}

func printSession(ctx context.Context, out io.Writer, d *deps) {
	snap := d.manager.Snapshot(ctx)
	if !snap.IsAuthenticated {
		fmt.Fprintln(out, "Not signed in")
		return
	}

	if snap.User == nil {
		fmt.Fprintln(out, "Signed in (profile unavailable)")
	} else {
		role := string(snap.User.Role)
		if snap.User.IsAdmin() {
			role += " *"
		}
		fmt.Fprintf(out, "User:     %s <%s>\n", snap.User.DisplayName(), snap.User.Email)
		fmt.Fprintf(out, "Role:     %s\n", role)
		fmt.Fprintf(out, "Active:   %t\n", snap.User.IsActive)
	}
	if snap.Verification == session.Unverified {
		fmt.Fprintln(out, "Profile:  cached, not confirmed by the identity service")
	}

	rec, ok, err := d.store.Load(ctx)
	if err != nil || !ok {
		return
	}
	tok := rec.OAuth2Token()
	fmt.Fprintf(out, "Token:    %s, refreshable: %t\n", tok.Type(), tok.RefreshToken != "")
	fmt.Fprintf(out, "Expires:  %s\n", tok.Expiry.Local().Format(time.RFC3339))
	if claims, err := idtoken.ParseUnverified(rec.IDToken); err == nil {
		fmt.Fprintf(out, "Subject:  %s\n", claims.Subject)
		fmt.Fprintf(out, "Issuer:   %s\n", claims.Issuer)
	}
}
