package system

import "context"

// NoopService satisfies Service for modules without background work.
type NoopService struct {
	ServiceName string
}

// Name implements Service.
func (n NoopService) Name() string { return n.ServiceName }

// Start implements Service.
func (n NoopService) Start(ctx context.Context) error { return nil }

// Stop implements Service.
func (n NoopService) Stop(ctx context.Context) error { return nil }
