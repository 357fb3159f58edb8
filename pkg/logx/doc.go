// Package logx configures clairvoyance's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional alert hook (min-level + rate limiting) that forwards
//     serious events to plugin error listeners
package logx
