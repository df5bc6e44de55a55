/*
Package log provides structured logging built on zerolog: a global
logger initialized once via Init, plus component- and context-tagged
child loggers for the bootstrap tree, the commit engine, and the
transport layer.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	bootstrapLog := log.WithComponent("bootstrap")
	bootstrapLog.Info().Int("rank", rank).Msg("bootstrap rank assigned")

	rankLog := log.WithRank(rank).With().Str("session_id", sessionID).Logger()
	rankLog.Debug().Msg("handshake started")

# Context loggers

WithComponent tags every log line with a fixed component name (used by
pkg/node, pkg/bootstrap, pkg/transport). WithRank, WithSession, and
WithFence tag the bootstrap tree position, the rendezvous session, and
a KVS fence name respectively — the identifiers that matter when
correlating log lines across a running tree.

# Levels

Debug is for handshake- and commit-retry-level detail, Info for rank
assignment and commit completion, Warn for retried-but-recovered
conditions, Error for operation failures, Fatal for unrecoverable
startup errors (exits the process via os.Exit(1), so it is reserved
for cmd/fluxd's top-level setup, never library code).
*/
package log
