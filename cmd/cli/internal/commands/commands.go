package commands

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/craftden/craftden/internal/bus"
	"github.com/craftden/craftden/internal/config"
	"github.com/craftden/craftden/internal/logger"
	"github.com/craftden/craftden/internal/session"
	"github.com/craftden/craftden/internal/store"
)

type Globals struct {
	Debug      bool
	ConfigPath string
	Version    string
}

// app bundles the shared pieces every command needs: the config, one store
// handle, the bus and the session client.
type app struct {
	cfg     config.Config
	store   store.Handle
	bus     *bus.Bus
	session *session.Client
}

// buildApp wires one client context. The returned cleanup closes the store
// handle.
func buildApp(globals *Globals) (*app, func(), error) {
	logg := logger.Setup(globals.Debug)
	log.Logger = logg

	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	fileStore, err := store.OpenFile(cfg.StoreFile())
	if err != nil {
		return nil, nil, err
	}

	b := bus.New()

	var transport http.RoundTripper
	if globals.Debug {
		transport = logger.NewHTTPRequests(logg, nil)
	}

	client, err := session.NewClient(cfg.ServerURL, fileStore, b,
		session.WithCookieFile(cfg.CookieFile()),
		session.WithTransport(transport),
	)
	if err != nil {
		fileStore.Close() //nolint:errcheck
		return nil, nil, err
	}

	cleanup := func() {
		if err := fileStore.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}

	return &app{cfg: cfg, store: fileStore, bus: b, session: client}, cleanup, nil
}
