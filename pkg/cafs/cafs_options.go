package cafs

import "go.uber.org/zap"

// Option to configure the content-addressed store
type Option func(*defaultFs)

// Logger sets a logger for this store
func Logger(l *zap.Logger) Option {
	return func(f *defaultFs) {
		if l != nil {
			f.l = l
		}
	}
}
