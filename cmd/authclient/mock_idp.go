package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-auth-client/idptest"
	"github.com/jrsteele09/go-auth-client/users"
)

// newMockIDPCmd runs the in-process identity service on a real listener, so
// the client can be tried without the production service.
func newMockIDPCmd(c *cli) *cobra.Command {
	var addr, issuer string
	var seed []string
	var lifetime time.Duration
	var quiet bool

	cmd := &cobra.Command{
		Use:   "mock-idp",
		Short: "Serve a local identity service for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !quiet {
				displayAppname(c.cfg.GetAppName())
			}

			seeded, err := parseSeedUsers(seed)
			if err != nil {
				return err
			}
			if issuer == "" {
				issuer = issuerForAddr(addr)
			}

			idp, err := idptest.New(
				idptest.WithLogger(c.logger),
				idptest.WithIssuer(issuer),
				idptest.WithTokenLifetime(lifetime),
				idptest.WithUsers(seeded...),
			)
			if err != nil {
				return err
			}

			server := &http.Server{Addr: addr, Handler: idp, ReadHeaderTimeout: 5 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				errCh <- listenAndServe(c, server)
			}()

			select {
			case err := <-errCh:
				return err
			case <-waitForStopSignal(cmd.Context()):
			}
			return shutdown(server)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "Listen address")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Issuer URL placed in ID tokens (default derived from --addr)")
	cmd.Flags().StringSliceVar(&seed, "user", nil, "Seed a confirmed user as email:password[:admin], repeatable")
	cmd.Flags().DurationVar(&lifetime, "token-lifetime", idptest.DefaultTokenLifetime, "Access token lifetime")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Skip the banner")
	return cmd
}

func parseSeedUsers(entries []string) ([]idptest.User, error) {
	seeded := make([]idptest.User, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Errorf("invalid --user %q, want email:password[:admin]", entry)
		}
		u := idptest.User{Email: parts[0], Password: parts[1], Role: users.RoleUser, Confirmed: true}
		if len(parts) > 2 && parts[2] == string(users.RoleAdmin) {
			u.Role = users.RoleAdmin
		}
		seeded = append(seeded, u)
	}
	return seeded, nil
}

// issuerForAddr maps a listen address to the URL clients reach it on.
func issuerForAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func listenAndServe(c *cli, server *http.Server) error {
	c.logger.Info().Str("addr", server.Addr).Msg("Mock identity service listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server.ListenAndServe")
	}
	return nil
}

func waitForStopSignal(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(stop)
		select {
		case <-stop:
		case <-ctx.Done():
		}
	}()
	return done
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}
