package engine

import (
	"context"
	"sync"

	"github.com/oshokin/fetchcore/internal/logger"
	"github.com/oshokin/fetchcore/internal/metrics"
)

//nolint:gochecknoglobals // The engine singletons live for the whole process.
var (
	// defaultSettingsMutex guards defaultSettings and settingsFrozen.
	defaultSettingsMutex sync.Mutex
	// defaultSettings configures the singletons when they are built.
	defaultSettings = DefaultSettings()
	// settingsFrozen is set once any singleton has read defaultSettings.
	settingsFrozen bool

	defaultRuntime     *Runtime
	defaultRuntimeOnce sync.Once

	defaultPool     *Pool
	defaultPoolOnce sync.Once

	defaultExecutor     *Executor
	defaultExecutorOnce sync.Once

	// fatalf terminates the process when a singleton cannot be built.
	fatalf = logger.Fatalf
)

// Configure sets the settings of the process-wide singletons.
// It must be called before their first use and fails with ErrAlreadyInitialized afterwards.
func Configure(settings Settings) error {
	defaultSettingsMutex.Lock()
	defer defaultSettingsMutex.Unlock()

	if settingsFrozen {
		return ErrAlreadyInitialized
	}

	defaultSettings = settings.withDefaults()

	return nil
}

// frozenSettings returns the singleton settings and forbids further changes.
func frozenSettings() Settings {
	defaultSettingsMutex.Lock()
	defer defaultSettingsMutex.Unlock()

	settingsFrozen = true

	return defaultSettings
}

// DefaultRuntime returns the process-wide runtime, starting it on first use.
func DefaultRuntime() *Runtime {
	defaultRuntimeOnce.Do(func() {
		settings := frozenSettings()
		defaultRuntime = NewRuntime(settings.WorkerThreads, WithRuntimeObserver(metrics.Default()))
	})

	return defaultRuntime
}

// DefaultPool returns the process-wide pool, building it on first use.
// A construction failure terminates the process.
func DefaultPool() *Pool {
	defaultPoolOnce.Do(func() {
		pool, err := NewPool(frozenSettings())
		if err != nil {
			fatalf(context.Background(), "Failed to build connection pool: %v", err)

			return
		}

		defaultPool = pool
	})

	return defaultPool
}

// Default returns the process-wide executor over DefaultRuntime and DefaultPool.
func Default() *Executor {
	defaultExecutorOnce.Do(func() {
		defaultExecutor = NewExecutor(DefaultRuntime(), DefaultPool(), WithRequestObserver(metrics.Default()))
	})

	return defaultExecutor
}
