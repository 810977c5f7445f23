// Package logging provides structured logging for the library and CLI.
//
// Logging is silent by default so that CLI output stays clean. Set the
// MIDEA_LOG_LEVEL environment variable (debug, info, warn, error) to enable
// it. Secrets passed through Redact are never logged in full.
package logging
