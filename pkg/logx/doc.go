// Package logx configures kinobot's structured logging.
//
// Components log through logx.Logger, a thin wrapper over zerolog:
//   - console output stays readable (short timestamp + short caller)
//   - file output is JSON, one event per line
//   - WARN and above can be mirrored to a Telegram log chat (rate limited)
package logx
