package console

import (
	"strconv"
	"time"
	"unicode/utf8"

	"bmnode/internal/p2p"
	"bmnode/internal/wire"
)

func (a *App) printEvent(ev p2p.Event) {
	switch ev.Type {
	case p2p.EventPeerConnected:
		dir := "outbound"
		if ev.Inbound {
			dir = "inbound"
		}
		a.ui.Printf("[NET] peer connected: %s (%s)\n", colored(ev.PeerAddr), dir)
	case p2p.EventPeerDisconnected:
		a.ui.Printf("[NET] peer disconnected: %s %s\n", ev.PeerID, ev.Err)
	case p2p.EventObjectReceived:
		a.log.Debug().Str("command", ev.Command).Str("vector", ev.Vector).Str("peer", ev.PeerID).Msg("object")
	}
}

func (a *App) handleDelivery(d p2p.Delivery) {
	ts := time.Now().Format("15:04:05")
	vec := shortHex(d.Vector.String())

	text := string(d.Plaintext)
	if !utf8.Valid(d.Plaintext) {
		text = "<" + strconv.Itoa(len(d.Plaintext)) + " bytes of binary data>"
	}
	tag := "MSG"
	if d.Command == wire.CmdBroadcast {
		tag = "BROADCAST"
	}
	a.ui.Printf("%s[%s]%s [%s] %s: %s\n", ansiDim, ts, ansiReset, tag, colored(vec), text)
}
