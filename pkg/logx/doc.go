// Package logx configures the scheduler daemon's structured logging.
//
// It uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Level/sink reconfigurable at runtime via Service.Apply, so a config
//     hot-reload (see internal/config) can swap sinks without restarting
//     the process.
package logx
