// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON lines on stderr for CI log collectors
//   - Development: colored console output for local runs
//
// Logs go to stderr so stdout carries only the run summary.
//
// Example Usage:
//
//	base, err := logging.New(logging.Config{Level: "info"})
//	if err != nil {
//		return err
//	}
//	logger := base.Component("scenario")
//	logger.Info("probe finished", zap.String("context", "window[1]/pane[0]"))
package logging
