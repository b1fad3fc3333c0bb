package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/craftden/craftden/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Login   commands.LoginCmd   `cmd:"" help:"Log in to the shop"`
		Logout  commands.LogoutCmd  `cmd:"" help:"Log out"`
		Whoami  commands.WhoamiCmd  `cmd:"" help:"Show the current session"`
		Consent commands.ConsentCmd `cmd:"" help:"Manage the data-collection consent decision"`
		Catalog commands.CatalogCmd `cmd:"" help:"Browse craft kits"`
		Book    commands.BookCmd    `cmd:"" help:"Book workshop activities"`
		Run     commands.RunCmd     `cmd:"" help:"Run an interactive client context"`
		Config  string              `help:"Path to config file" type:"path" env:"CRAFTDEN_CONFIG"`
		Debug   bool                `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, ConfigPath: cli.Config, Version: version})
	cmd.FatalIfErrorf(err)
}
