// Package logging builds slog loggers for the daemon and CLI.
//
// It offers a console handler tuned for terminal reading, a JSON handler
// for machine consumption, multi-writer output (stdout plus a log file
// under the configured log directory), and a small facade of attribute
// constructors so call sites avoid importing log/slog directly.
package logging
