package npd

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ModuleRunner runs a module within the supervisor.
type ModuleRunner struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor manages module lifecycles.
type Supervisor struct {
	Logger *zap.Logger
}

// Run starts all module runners and waits for termination. The first module
// error cancels the others.
func (s Supervisor) Run(ctx context.Context, modules []ModuleRunner) error {
	if len(modules) == 0 {
		return fmt.Errorf("no modules enabled")
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(modules))

	for _, module := range modules {
		module := module
		wg.Add(1)
		go func() {
			defer wg.Done()
			log := logger.With(zap.String("module", module.Name))
			log.Info("starting module")
			if err := module.Run(ctx); err != nil {
				log.Error("module exited", zap.Error(err))
				errCh <- fmt.Errorf("%s: %w", module.Name, err)
				return
			}
			log.Info("module stopped")
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err = <-errCh:
		cancel()
	}

	wg.Wait()
	return err
}
