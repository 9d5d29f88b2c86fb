// Package supervisor wires venue connectors, execution gateways (via the
// strategy), the risk manager, and the strategy worker together and owns
// their shared lifecycle: channel allocation, startup, and shutdown.
package supervisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/connectors"
	"github.com/latencyx/core/internal/risk"
	"github.com/latencyx/core/internal/strategies"
)

const (
	defaultTickBuffer = 1024
	defaultFillBuffer = 1024
	defaultMinCPU     = 4
)

// ConnectorSpec pairs a connector with the symbols it should subscribe
// to; every connector writes onto the same merged tick channel.
type ConnectorSpec struct {
	Connector connectors.Connector
	Symbols   []string
}

// Config describes one pipeline instance. Strategy and Risk are built by
// the caller (they depend on which venue gateways and credentials the
// deployment has); the supervisor only needs the finished capabilities.
type Config struct {
	Connectors []ConnectorSpec
	Strategy   strategies.Strategy
	Risk       *risk.Manager
	Bus        *bus.Bus
	Log        *zap.Logger

	// DashboardTask, if set, is spawned alongside the pipeline workers
	// and is expected to return when ctx is cancelled, e.g. an HTTP
	// server's ListenAndServe wrapped to respect ctx.Done().
	DashboardTask func(ctx context.Context) error

	// TickBufferSize and FillBufferSize default to 1024 when zero.
	TickBufferSize int
	FillBufferSize int

	// MinCPU is the minimum schedulable core count required to start;
	// defaults to 4. Tests override it to run on smaller machines.
	MinCPU int
}

func (c *Config) applyDefaults() {
	if c.TickBufferSize <= 0 {
		c.TickBufferSize = defaultTickBuffer
	}
	if c.FillBufferSize <= 0 {
		c.FillBufferSize = defaultFillBuffer
	}
	if c.MinCPU <= 0 {
		c.MinCPU = defaultMinCPU
	}
}
