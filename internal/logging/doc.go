// Package logging provides a simple leveled logging interface for the
// media publisher.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (copy progress, naming attempts)
//   - INFO: General operational messages
//   - WARN: Warning conditions (failed notifications, close errors)
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the process
//
// The log level is read once from the DEBUG or LOG_LEVEL environment
// variables. Tests may override it with SetLevel.
package logging
