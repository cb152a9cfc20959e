// Package logging provides structured logging for printrelay.
//
// It wraps log/slog so every component logs with the same handler, level
// filter and default fields (service, version).
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("octoprint").Info("subscribed", "topic", topic)
//
// Never log secrets, tokens or passwords.
package logging
