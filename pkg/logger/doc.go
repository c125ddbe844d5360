// Package logger provides the structured logging interface used across pixivrank.
//
// It wraps zerolog with a colored console writer (stderr) or JSON lines, and an
// optional log file that always receives JSON. Components take a Logger at
// construction; packages without one fall back to the global logger.
//
//	log, err := logger.New(&cfg.Logging)
//	if err != nil {
//		return err
//	}
//	logger.SetLogger(log)
//	log = log.WithField("component", "scheduler")
//	log.InfoWithFields("pause", map[string]interface{}{"dispatched": 50})
//
// Tests use NewTestLogger to capture messages and NewNopLogger to discard them.
package logger
