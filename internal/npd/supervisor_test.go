package npd

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSupervisorRunsModules(t *testing.T) {
	supervisor := Supervisor{Logger: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{}, 1)
	modules := []ModuleRunner{
		{
			Name: "test",
			Run: func(ctx context.Context) error {
				started <- struct{}{}
				<-ctx.Done()
				return nil
			},
		},
	}

	go func() {
		<-started
		cancel()
	}()

	if err := supervisor.Run(ctx, modules); err != nil {
		t.Fatalf("supervisor run: %v", err)
	}
}

func TestSupervisorPropagatesErrorsAndStopsOthers(t *testing.T) {
	supervisor := Supervisor{Logger: zap.NewNop()}

	stopped := make(chan struct{})
	modules := []ModuleRunner{
		{
			Name: "fail",
			Run: func(ctx context.Context) error {
				return errors.New("boom")
			},
		},
		{
			Name: "relay",
			Run: func(ctx context.Context) error {
				<-ctx.Done()
				close(stopped)
				return nil
			},
		},
	}

	if err := supervisor.Run(context.Background(), modules); err == nil {
		t.Fatalf("expected error")
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("expected remaining module to be cancelled")
	}
}

func TestSupervisorNoModules(t *testing.T) {
	supervisor := Supervisor{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := supervisor.Run(ctx, nil); err == nil {
		t.Fatalf("expected error")
	}
}
