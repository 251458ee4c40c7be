package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender that writes through tb.Log so each line is attributed to
// the test that produced it, even when tests run in parallel. Times are in local time.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

// Write formats the entry the same way as ConsoleAppender and hands it to tb.Log.
func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	// Report the caller of the logger instead of this method.
	tapp.tb.Helper()

	columns := []string{
		entry.Time.Format(DefaultTimeFormatStr),
		strings.ToUpper(entry.Level.String()),
		entry.LoggerName,
	}
	if entry.Caller.Defined {
		columns = append(columns, callerToString(&entry.Caller))
	}
	columns = append(columns, entry.Message)

	var err error
	if len(fields) > 0 {
		var encoded string
		if encoded, err = encodeFields(fields); err == nil {
			columns = append(columns, encoded)
		}
	}
	tapp.tb.Log(strings.Join(columns, "\t"))
	return err
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}
