// Package logging provides the structured logging system for procwarden.
//
// Loggers are created per module with logging.GetLogger(module) and carry a
// "module" attribute. Levels can be set globally and overridden per module
// at initialization time. Records fan out to:
//   - stdout, as text or JSON
//   - the systemd journal, when running under systemd
//   - an in-memory ring buffer, served by the HTTP API for log inspection
package logging
