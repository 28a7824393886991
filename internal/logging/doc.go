// Package logging provides structured logging for stagectl runs.
//
// It wraps log/slog to write JSON lines that can be filtered after the fact
// when a batch run declined or skipped something unexpectedly. Every run
// appends to the same file, so the writer rotates by size.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/stagectl", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("proposal committed", "groups", 3)
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	cmdLogger := logger.WithCommand("select")
//	reqLogger := cmdLogger.WithRequest(4242).WithStaging("openSUSE:Factory:Staging:A")
//	reqLogger.Warn("request already staged")
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"request already staged","command":"select","request_id":4242,"staging":"openSUSE:Factory:Staging:A"}
//
// # Testing
//
// Use [NopLogger] to discard output.
package logging
