// Package logx configures taskpilot's structured logging.
//
// A small wrapper (logx.Logger) over zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional chat sink (min-level + rate limiting) for operator alerts
package logx
