package console

import (
	"strings"

	"bmnode/internal/p2p"
)

const (
	ansiReset = "\033[0m"
	ansiDim   = "\033[2m"
)

// Some basic, deterministic colors for peers and keys.
var nameColors = []string{
	"\033[31m", // red
	"\033[32m", // green
	"\033[33m", // yellow
	"\033[34m", // blue
	"\033[35m", // magenta
	"\033[36m", // cyan
}

// pickColor returns a color based on a stable hash of the string.
func pickColor(s string) string {
	if s == "" {
		return ansiReset
	}
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*16777619 ^ uint32(s[i]) // FNV-ish
	}
	return nameColors[h%uint32(len(nameColors))]
}

// shortHex trims long hex identifiers such as vectors and keys.
func shortHex(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func colored(s string) string {
	return pickColor(s) + s + ansiReset
}

func PrintBanner(p Printer, n *p2p.Node, keys []string) {
	p.Println()
	p.Println("Node started.")
	p.Printf("Name:           %s\n", n.Name())
	p.Printf("Addr:           %s\n", n.ListenAddr())
	p.Printf("Streams:        %v\n", n.Streams())
	for _, k := range keys {
		p.Printf("Key:            %s\n", colored(shortHex(k)))
	}
	p.Println()
	PrintCommands(p)
	p.Println()
}

func PrintCommands(p Printer) {
	p.Println("Commands:")
	p.Println("    /me                          - prints this node's info and public keys")
	p.Println("    /peers                       - show open connections")
	p.Println("    /connect <host:port>         - dial a node")
	p.Println("    /send <pubkey> <message>     - encrypt, solve and relay a msg object")
	p.Println("    /inv                         - count stored objects per stream")
	p.Println("    /quit                        - exit")
}

// splitCommand returns the command word and the trimmed remainder.
func splitCommand(line string) (string, string) {
	cmd, rest, _ := strings.Cut(line, " ")
	return cmd, strings.TrimSpace(rest)
}
