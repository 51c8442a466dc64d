package stream

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLoggingObserver returns an Observer that logs every value at level
// before passing it to wrapped. If wrapped is nil it only logs.
func NewLoggingObserver[T any](wrapped Observer[T], logger *zap.Logger, level zapcore.Level, name string) Observer[T] {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(v T) {
		if ce := logger.Check(level, "Value observed"); ce != nil {
			ce.Write(
				zap.String("observer", name),
				zap.Any("value", v),
				zap.Bool("hasWrapped", wrapped != nil),
			)
		}

		if wrapped != nil {
			wrapped(v)
		}
	}
}
