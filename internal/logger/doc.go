// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a sane console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Entries are written to standard error: protected units inherit standard
// output for their own use, and the summary report is printed there, so
// diagnostics must stay out of that stream. Code accepts a context and
// extracts the logger from it, enabling scoped, structured logging
// throughout the codebase.
package logger
