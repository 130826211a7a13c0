package p2p

// Logf writes a debug line when Debug is set in the config.
func (n *Node) Logf(format string, args ...any) {
	if !n.cfg.Config.Debug {
		return
	}
	n.log.Debug().Msgf(format, args...)
}
