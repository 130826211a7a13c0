package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "bm-node",
		Usage: "relay node for the Bitmessage object network",
		Flags: nodeFlags,
		Commands: []*cli.Command{
			runCommand,
			keyCommand,
		},
		Action: runNode,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
