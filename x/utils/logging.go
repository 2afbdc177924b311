package utils

import (
	"context"
	"time"

	"github.com/iov-one/escrowd"
)

// LogDuration writes information about the time and result of an operation
// to the logger found in the context. Errors are logged at error level,
// success at info level or, if lowPrio is set, at debug level.
func LogDuration(ctx context.Context, start time.Time, msg string, err error, lowPrio bool, keyvals ...interface{}) {
	delta := time.Since(start)
	logger := escrowd.GetLogger(ctx).With("duration", delta/time.Microsecond)
	if len(keyvals) != 0 {
		logger = logger.With(keyvals...)
	}
	if id := escrowd.GetRequestID(ctx); id != "" {
		logger = logger.With("request", id)
	}

	if err != nil {
		logger.With("err", err).Error(msg)
		return
	}
	if lowPrio {
		logger.Debug(msg)
	} else {
		logger.Info(msg)
	}
}
