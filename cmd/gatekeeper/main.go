package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "gatekeeper"
	app.Usage = "PumpPilot authentication service"
	app.Description = `Issues wallet challenges, verifies personal_sign signatures and
email/password logins, and mints session tokens for both.`

	app.Commands = []*cli.Command{
		serveCommand,
		keygenCommand,
		signCommand,
		loginCommand,
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
