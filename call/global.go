package call

import (
	"sync"

	"go.uber.org/zap"
)

var (
	globalFactory *Factory
	globalOnce    sync.Once
)

// DefaultFactory returns the shared, lazy-initialized default factory.
// It uses NewFactory() if SetGlobal has not been called.
func DefaultFactory() *Factory {
	globalOnce.Do(func() {
		if globalFactory == nil {
			globalFactory = NewFactory()
		}
	})
	return globalFactory
}

// SetGlobal configures the default factory.
// It must be called before DefaultFactory() is used (e.g. at startup).
// If called after initialization, it logs a warning and does nothing.
func SetGlobal(f *Factory) {
	if f == nil {
		return
	}

	// Not strictly race-free vs DefaultFactory, but sufficient for startup-time verification.
	if globalFactory != nil {
		zap.L().Warn("call: SetGlobal called after global factory already initialized; ignoring")
		return
	}

	globalOnce.Do(func() {
		globalFactory = f
	})
}
