package commands

import (
	"context"
	"fmt"

	"github.com/craftden/craftden/internal/catalog"
)

type CatalogCmd struct {
	List CatalogListCmd `cmd:"" help:"List craft kits"`
	Show CatalogShowCmd `cmd:"" help:"Show one craft kit"`
}

type CatalogListCmd struct{}

func (c *CatalogListCmd) Run(ctx context.Context, globals *Globals) error {
	app, cleanup, err := buildApp(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	products, err := catalog.NewClient(app.cfg.ServerURL, app.cfg.CacheDir, 0).List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}

	for _, p := range products {
		stock := ""
		if !p.InStock {
			stock = "  (out of stock)"
		}
		fmt.Printf("%-12s %-30s %8.2f%s\n", p.ID, p.Name, float64(p.PriceCents)/100, stock)
	}
	return nil
}

type CatalogShowCmd struct {
	ID string `arg:"" help:"Product ID"`
}

func (c *CatalogShowCmd) Run(ctx context.Context, globals *Globals) error {
	app, cleanup, err := buildApp(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := catalog.NewClient(app.cfg.ServerURL, app.cfg.CacheDir, 0).Get(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch product: %w", err)
	}

	fmt.Printf("%s\n%s\n\nPrice: %.2f\n", p.Name, p.Description, float64(p.PriceCents)/100)
	return nil
}
