package dt

// Logger provides structured logging for the deployment core.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// targetLogger prefixes every entry with the target's host.
type targetLogger struct {
	l    Logger
	host string
}

func withTarget(l Logger, t *Target) Logger {
	return &targetLogger{l: l, host: t.Host()}
}

func (t *targetLogger) args(args []any) []any {
	return append([]any{"target", t.host}, args...)
}

func (t *targetLogger) Debug(msg string, args ...any) { t.l.Debug(msg, t.args(args)...) }
func (t *targetLogger) Info(msg string, args ...any)  { t.l.Info(msg, t.args(args)...) }
func (t *targetLogger) Warn(msg string, args ...any)  { t.l.Warn(msg, t.args(args)...) }
func (t *targetLogger) Error(msg string, args ...any) { t.l.Error(msg, t.args(args)...) }
