// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a sane console encoder,
//   - a tee logger that mirrors stdout into an append-only log file,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// All services accept a context and extract the logger from it, so tests can
// substitute an in-memory core without touching global state.
package logger
