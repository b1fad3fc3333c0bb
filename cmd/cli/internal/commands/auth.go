package commands

import (
	"context"
	"fmt"
)

type LoginCmd struct {
	Email    string `arg:"" help:"Account email"`
	Password string `help:"Account password" env:"CRAFTDEN_PASSWORD"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	app, cleanup, err := buildApp(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	m, err := app.session.Login(ctx, l.Email, l.Password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("Welcome back, %s\n", m.DisplayName)
	if m.Admin {
		fmt.Println("(admin account)")
	}
	return nil
}

type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	app, cleanup, err := buildApp(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.session.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	fmt.Println("Logged out")
	return nil
}

type WhoamiCmd struct{}

func (w *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	app, cleanup, err := buildApp(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	m, err := app.session.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("not logged in: %w", err)
	}

	fmt.Printf("%s <%s>\n", m.DisplayName, m.Email)
	if m.Admin {
		fmt.Println("admin: yes")
	}
	return nil
}
