package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftden/craftden/internal/bus"
	"github.com/craftden/craftden/internal/consent"
)

type ConsentCmd struct {
	Status  ConsentStatusCmd  `cmd:"" help:"Show the current consent decision"`
	Accept  ConsentAcceptCmd  `cmd:"" help:"Accept non-essential data collection"`
	Decline ConsentDeclineCmd `cmd:"" help:"Decline non-essential data collection"`
}

type ConsentStatusCmd struct{}

func (c *ConsentStatusCmd) Run(ctx context.Context, globals *Globals) error {
	app, cleanup, err := buildApp(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	rec, err := consent.NewClient(app.session).ConsentStatus(ctx)
	if err != nil {
		// The local mirror still answers when the backend can't.
		local := consent.StatusFromStore(app.store)
		if local == consent.StatusUnset {
			return fmt.Errorf("failed to read consent status: %w", err)
		}
		fmt.Printf("%s (local mirror; backend unreachable)\n", local)
		return nil
	}

	if rec == nil {
		fmt.Println("undecided")
		return nil
	}
	fmt.Printf("%s (decided %s)\n", rec.Status, rec.DecidedAt.Format("2006-01-02 15:04"))
	return nil
}

type ConsentAcceptCmd struct{}

func (c *ConsentAcceptCmd) Run(ctx context.Context, globals *Globals) error {
	return recordDecision(ctx, globals, consent.StatusAccepted)
}

type ConsentDeclineCmd struct{}

func (c *ConsentDeclineCmd) Run(ctx context.Context, globals *Globals) error {
	return recordDecision(ctx, globals, consent.StatusDeclined)
}

// recordDecision mirrors a decision locally and broadcasts it, then
// persists to the backend. The local update happens regardless of the
// backend outcome, matching the interactive prompt's behaviour.
func recordDecision(ctx context.Context, globals *Globals, status consent.Status) error {
	app, cleanup, err := buildApp(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := app.session.CurrentUser(ctx); err != nil {
		return fmt.Errorf("consent requires a signed-in session: %w", err)
	}

	consent.SaveLocal(app.store, status, time.Now())
	app.bus.Publish(bus.ConsentChanged{Accepted: status == consent.StatusAccepted})

	if err := consent.NewClient(app.session).SaveConsent(ctx, status); err != nil {
		log.Warn().Err(err).Msg("failed to persist consent decision to backend")
		fmt.Printf("Consent %s (recorded locally; backend unreachable)\n", status)
		return nil
	}

	fmt.Printf("Consent %s\n", status)
	return nil
}
