// Package logging holds the slog conventions of inboxdigest: shared
// attribute keys, attribute constructors, the Logger interface the pipeline
// accepts and the helpers that keep mailbox owners out of log output.
//
// Users are logged as user_hash=user:<hex>, never by address:
//
//	logger.Warn("message fetch failed",
//	    logging.RunID(runID),
//	    logging.UserHash(req.UserEmail),
//	    logging.MessageID(id),
//	    logging.Err(err))
//
// Credentials and passwords are passed through SanitizeToken before they
// reach a log line.
package logging
