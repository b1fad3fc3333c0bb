package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/craftden/craftden/internal/consent"
	"github.com/craftden/craftden/internal/guard"
)

// RunCmd runs one interactive client context: the consent synchronizer and
// session guard stay live, reacting to sibling processes through the shared
// store while the user navigates between views.
type RunCmd struct {
	View string `help:"Initial view" default:"catalog"`
}

func (r *RunCmd) Run(ctx context.Context, globals *Globals) error {
	app, cleanup, err := buildApp(globals)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("Received interrupt signal, shutting down...")
		cancel()
	}()

	sync := consent.New(
		consent.NewClient(app.session),
		app.store,
		app.bus,
		&terminalPrompter{},
		consent.Config{
			ExcludedViews:    app.cfg.ExcludedViews,
			SettleDelay:      app.cfg.SettleDelay,
			PromptDelay:      app.cfg.PromptDelay,
			LivenessInterval: app.cfg.LivenessInterval,
		},
	)
	sync.Start(ctx)
	defer sync.Stop()

	g := guard.New(app.session, app.store, guard.Config{})
	view := r.View

	navigate := func(target string) {
		decision := g.Evaluate(ctx, target, capabilityFor(target))
		if !decision.Allow {
			fmt.Printf("-> redirected to %s\n", decision.Redirect)
			target = decision.Redirect
		}
		view = target
		sync.SetView(view)
		fmt.Printf("[%s]\n", view)
	}

	stopNotify := g.Notify(app.bus, func() {
		decision := g.Evaluate(ctx, view, capabilityFor(view))
		if !decision.Allow {
			fmt.Printf("\n-> session changed, redirected to %s\n", decision.Redirect)
			view = decision.Redirect
			sync.SetView(view)
		}
	})
	defer stopNotify()

	navigate(view)
	fmt.Println("commands: go <view> | accept | decline | quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "go":
				if len(fields) < 2 {
					fmt.Println("usage: go <view>")
					continue
				}
				navigate(fields[1])
			case "accept":
				if err := sync.Accept(ctx); err != nil {
					fmt.Printf("error: %v\n", err)
				}
			case "decline":
				if err := sync.Decline(ctx); err != nil {
					fmt.Printf("error: %v\n", err)
				}
			case "quit":
				return nil
			default:
				fmt.Println("commands: go <view> | accept | decline | quit")
			}
		}
	}
}

func capabilityFor(view string) guard.Capability {
	switch view {
	case "booking", "account":
		return guard.CapabilityAuthenticated
	case "admin":
		return guard.CapabilityAdmin
	default:
		return guard.CapabilityNone
	}
}

// terminalPrompter renders the consent prompt inline.
type terminalPrompter struct{}

func (terminalPrompter) Show() {
	fmt.Println()
	fmt.Println("We'd like to collect anonymous usage data to improve the shop.")
	fmt.Println("Type 'accept' or 'decline'.")
}

func (terminalPrompter) Hide() {
	fmt.Println("(consent prompt withdrawn)")
}
