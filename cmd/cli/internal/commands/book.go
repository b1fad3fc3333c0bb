package commands

import (
	"context"
	"fmt"

	"github.com/craftden/craftden/internal/booking"
	"github.com/craftden/craftden/internal/guard"
)

type BookCmd struct {
	Activities BookActivitiesCmd `cmd:"" help:"List bookable workshops"`
	Slots      BookSlotsCmd      `cmd:"" help:"List open slots for a workshop"`
	Create     BookCreateCmd     `cmd:"" help:"Book a slot"`
}

// requireBooking gates the booking views the way the UI does: redirect
// means the command refuses and names the view the user should go to.
func requireBooking(ctx context.Context, app *app, view string) error {
	g := guard.New(app.session, app.store, guard.Config{})
	decision := g.Evaluate(ctx, view, guard.CapabilityAuthenticated)
	if !decision.Allow {
		return fmt.Errorf("booking requires a signed-in session: run 'craftden login' first")
	}
	return nil
}

type BookActivitiesCmd struct{}

func (b *BookActivitiesCmd) Run(ctx context.Context, globals *Globals) error {
	app, cleanup, err := buildApp(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := requireBooking(ctx, app, "booking"); err != nil {
		return err
	}

	activities, err := booking.NewClient(app.session).Activities(ctx)
	if err != nil {
		return fmt.Errorf("failed to list activities: %w", err)
	}

	for _, a := range activities {
		fmt.Printf("%-12s %-30s %3d min  %8.2f\n", a.ID, a.Title, a.DurationMinutes, float64(a.PriceCents)/100)
	}
	return nil
}

type BookSlotsCmd struct {
	ActivityID string `arg:"" help:"Activity ID"`
}

func (b *BookSlotsCmd) Run(ctx context.Context, globals *Globals) error {
	app, cleanup, err := buildApp(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := requireBooking(ctx, app, "booking"); err != nil {
		return err
	}

	slots, err := booking.NewClient(app.session).Slots(ctx, b.ActivityID)
	if err != nil {
		return fmt.Errorf("failed to list slots: %w", err)
	}

	for _, s := range slots {
		fmt.Printf("%-12s %s  %d seats left\n", s.ID, s.StartsAt.Format("Mon 2 Jan 15:04"), s.SeatsLeft)
	}
	return nil
}

type BookCreateCmd struct {
	ActivityID string `arg:"" help:"Activity ID"`
	SlotID     string `arg:"" help:"Slot ID"`
}

func (b *BookCreateCmd) Run(ctx context.Context, globals *Globals) error {
	app, cleanup, err := buildApp(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := requireBooking(ctx, app, "booking"); err != nil {
		return err
	}

	booked, err := booking.NewClient(app.session).Book(ctx, b.ActivityID, b.SlotID)
	if err != nil {
		return fmt.Errorf("failed to book slot: %w", err)
	}

	fmt.Printf("Booked %s (%s)\n", booked.ID, booked.Status)
	return nil
}
