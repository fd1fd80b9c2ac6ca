package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pumppilot/gatekeeper"
	"github.com/urfave/cli/v2"
)

var loginCommand = &cli.Command{
	Name:  "login",
	Usage: "Run the wallet handshake against a running server and print the tokens",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "url",
			Value: "http://localhost:8080",
			Usage: "Base URL of the server",
		},
		&cli.StringFlag{
			Name:     "key",
			Usage:    "Hex encoded secp256k1 private key",
			EnvVars:  []string{"GATEKEEPER_WALLET_KEY"},
			Required: true,
		},
	},
	Action: func(c *cli.Context) error {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(c.String("key"), "0x"))
		if err != nil {
			return fmt.Errorf("invalid wallet key: %w", err)
		}

		tokens, err := gatekeeper.SignInWithWallet(c.Context, gatekeeper.NewClient(c.String("url"), nil), key)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(tokens)
	},
}
