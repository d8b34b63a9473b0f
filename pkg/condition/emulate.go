package condition

import (
	"context"
	"fmt"
)

// NetworkParams mirrors the arguments of Network.emulateNetworkConditions.
type NetworkParams struct {
	Offline            bool
	DownloadThroughput float64 // bytes/s, -1 disables
	UploadThroughput   float64 // bytes/s, -1 disables
	Latency            float64 // ms
}

// Throttler is the part of the instrumentation channel that changes
// emulation state. State is sticky until the page is closed.
type Throttler interface {
	EmulateNetwork(ctx context.Context, p NetworkParams) error
	SetCPUThrottlingRate(ctx context.Context, rate float64) error
}

// Apply puts c into effect on t. It must be called once per page, before
// navigation. NoThrottling issues no commands. A combined condition applies
// the network profile first, then the CPU profile; both stay in effect.
func Apply(ctx context.Context, t Throttler, c Condition) error {
	if c.network.Throttled() {
		if err := t.EmulateNetwork(ctx, c.network.Params()); err != nil {
			return fmt.Errorf("apply network profile %s: %w", c.network.name, err)
		}
	}
	if c.cpu.Throttled() {
		if err := t.SetCPUThrottlingRate(ctx, c.cpu.Rate()); err != nil {
			return fmt.Errorf("apply cpu profile %s: %w", c.cpu.name, err)
		}
	}
	return nil
}
