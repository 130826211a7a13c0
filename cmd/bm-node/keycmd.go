package main

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"bmnode/internal/crypto/ecies"
)

var (
	keyCommand = &cli.Command{
		Name:  "key",
		Usage: "Operations on recipient keys",
		Subcommands: []*cli.Command{
			keyGenerateCommand,
			keyToPublicCommand,
		},
	}
	keyGenerateCommand = &cli.Command{
		Name:   "generate",
		Usage:  "Prints a new private key and its public key",
		Action: genkey,
	}
	keyToPublicCommand = &cli.Command{
		Name:      "to-public",
		Usage:     "Prints the public key for a hex private key",
		ArgsUsage: "privkey",
		Action:    keyToPublic,
	}
)

func genkey(ctx *cli.Context) error {
	key, err := ecies.GenerateKey()
	if err != nil {
		return fmt.Errorf("could not generate key: %v", err)
	}
	pub := ecies.MarshalPublicKey(key.PubKey())
	fmt.Fprintf(ctx.App.Writer, "private: %s\npublic:  %s\n", ecies.PrivateKeyHex(key), hex.EncodeToString(pub[:]))
	return nil
}

func keyToPublic(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("need private key as argument")
	}
	key, err := ecies.ParsePrivateKeyHex(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	pub := ecies.MarshalPublicKey(key.PubKey())
	fmt.Fprintln(ctx.App.Writer, hex.EncodeToString(pub[:]))
	return nil
}
