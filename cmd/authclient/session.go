package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/gateway"
	"github.com/jrsteele09/go-auth-client/idtoken"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/jrsteele09/go-auth-client/storage/backend"
)

// deps is one command's view of the session and what backs it.
type deps struct {
	repo    storage.Repo
	store   *credentials.Store
	gateway *gateway.HTTPClient
	manager *session.Manager
	logger  zerolog.Logger
}

func (d *deps) Close() {
	d.manager.Close()
	if err := d.repo.Close(); err != nil {
		d.logger.Err(err).Msg("Closing credential store failed")
	}
}

// open wires the configured store and gateway into a session manager. ID
// token verification is only set up when verify is true and an issuer is
// configured, since discovery costs a round trip.
func (c *cli) open(ctx context.Context, verify bool) (*deps, error) {
	repo, err := backend.Open(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, errors.Wrap(err, "[cli.open] credential store")
	}

	store, err := credentials.NewStore(repo, credentials.WithLogger(c.logger))
	if err != nil {
		repo.Close()
		return nil, err
	}

	gw, err := gateway.NewHTTPClientFromConfig(c.cfg, c.logger)
	if err != nil {
		repo.Close()
		return nil, err
	}

	opts := []session.ManagerOption{session.WithLogger(c.logger)}
	if issuer := c.cfg.GetOIDCIssuer(); verify && issuer != "" {
		verifier, err := idtoken.NewOIDCVerifier(ctx, issuer, c.cfg.GetOIDCClientID())
		if err != nil {
			repo.Close()
			return nil, err
		}
		opts = append(opts, session.WithIDTokenVerifier(verifier))
	}

	manager, err := session.New(gw, store, opts...)
	if err != nil {
		repo.Close()
		return nil, err
	}
	return &deps{repo: repo, store: store, gateway: gw, manager: manager, logger: c.logger}, nil
}
