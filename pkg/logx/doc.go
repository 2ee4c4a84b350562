// Package logx configures horoscopebot's structured logging.
//
// The bot uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - The zerolog root reachable for libraries that log through zerolog directly
//     (the WhatsApp client)
package logx
