// Package logger defines the structured logging abstraction used across
// the module. Production code wires the zap implementation; tests and
// library consumers that want silence use the nop logger.
package logger

// Field is a structured logging key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// F constructs a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger is the minimal structured logging interface the payment flow
// emits through.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger with the given fields bound to every entry.
	With(fields ...Field) Logger
}

// NopLogger discards everything.
type NopLogger struct{}

// NewNop returns a logger that discards all output.
func NewNop() *NopLogger { return &NopLogger{} }

func (n *NopLogger) Debug(msg string, fields ...Field) {}
func (n *NopLogger) Info(msg string, fields ...Field)  {}
func (n *NopLogger) Warn(msg string, fields ...Field)  {}
func (n *NopLogger) Error(msg string, fields ...Field) {}
func (n *NopLogger) With(fields ...Field) Logger       { return n }
