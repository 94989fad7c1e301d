package network

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoGPSTime is returned by LoopUntilGPSTime when the iteration budget
// runs out before the lidar reports an absolute time.
var ErrNoGPSTime = errors.New("no GPS time")

// TimeFeeder consumes packets while waiting for GPS time. It must not
// program any camera.
type TimeFeeder interface {
	UpdateTime(firing, positioning []byte)
	HasGPSTime() bool
}

// LoopUntilGPSTime pulls packets from src into feeder until feeder has GPS
// time, then drains src so steady-state processing starts from the freshest
// data. maxIterations counts Next calls; zero or less means no limit.
// Retryable outcomes are absorbed; fatal errors and end of stream are
// returned. onPacket, when set, sees every Next result before it is handled.
func LoopUntilGPSTime(ctx context.Context, src Source, feeder TimeFeeder, maxIterations int, onPacket func(Packet, error)) error {
	for i := 0; maxIterations <= 0 || i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, err := src.Next(ctx, true)
		if onPacket != nil {
			onPacket(pkt, err)
		}
		switch OutcomeOf(err) {
		case OutcomeOK:
			feeder.UpdateTime(pkt.Firing, pkt.Positioning)
		case OutcomeFatal, OutcomeEndOfStream:
			return err
		}
		if feeder.HasGPSTime() {
			src.Drain()
			return nil
		}
	}
	return fmt.Errorf("%w after %d packets", ErrNoGPSTime, maxIterations)
}
