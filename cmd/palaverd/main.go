package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pedrogbi/palaver/internal/daemon"
	"github.com/pedrogbi/palaver/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	serverFlag := flag.String("server", "", "chat service base URL (overrides config)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	serverURL := session.ResolveServerURL(*serverFlag)

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: sessionName,
			ServerURL:   serverURL,
		}),
	)

	app.Run()
}
