package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pumppilot/gatekeeper/adapters/tokenizer"
	"github.com/pumppilot/gatekeeper/internal/eth"
	"github.com/urfave/cli/v2"
)

var keygenCommand = &cli.Command{
	Name:  "keygen",
	Usage: "Print a new PEM encoded token signing key for auth.signing_key",
	Action: func(c *cli.Context) error {
		key, err := tokenizer.GenerateSigningKey()
		if err != nil {
			return err
		}
		encoded, err := tokenizer.EncodeSigningKey(key)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(c.App.Writer, encoded)
		return err
	},
}

var signCommand = &cli.Command{
	Name:      "sign",
	Usage:     "Sign a challenge message with a wallet key, as a wallet's personal_sign would",
	ArgsUsage: "<message>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "key",
			Usage:    "Hex encoded secp256k1 private key",
			EnvVars:  []string{"GATEKEEPER_WALLET_KEY"},
			Required: true,
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("expected exactly one message argument")
		}

		key, err := crypto.HexToECDSA(strings.TrimPrefix(c.String("key"), "0x"))
		if err != nil {
			return fmt.Errorf("invalid wallet key: %w", err)
		}

		// Shells make embedding a newline awkward, so accept a literal \n
		message := strings.ReplaceAll(c.Args().First(), `\n`, "\n")
		sig, err := eth.SignPersonal(message, key)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(c.App.Writer, "address:   %s\nsignature: %s\n",
			crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig))
		return err
	},
}
