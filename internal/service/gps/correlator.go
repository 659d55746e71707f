// Package gps keeps the most recent position fix for the capture loop.
package gps

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"aerialcapture/internal/dto"
	"aerialcapture/internal/logger"
)

var (
	// ErrTimeout means no position arrived within the wait.
	ErrTimeout = errors.New("gps: no position within timeout")
	// ErrStreamClosed means the position source is gone for good.
	ErrStreamClosed = errors.New("gps: position stream closed")
)

// PositionStream is an external source of position messages.
type PositionStream interface {
	// Next blocks until a fix arrives, timeout elapses (ErrTimeout) or ctx ends.
	Next(ctx context.Context, timeout time.Duration) (dto.GPSFix, error)
	Close() error
}

// Correlator owns the current fix. A single background goroutine replaces it; any goroutine may
// take a snapshot without blocking.
type Correlator struct {
	stream PositionStream
	wait   time.Duration
	clock  clock.Clock
	logger *logger.Logger

	current atomic.Pointer[dto.GPSFix]
	updates atomic.Int64

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewCorrelator creates a Correlator. stream may be nil, in which case every snapshot is unknown.
func NewCorrelator(stream PositionStream, wait time.Duration, clk clock.Clock, logger *logger.Logger) *Correlator {
	if clk == nil {
		clk = clock.New()
	}
	return &Correlator{
		stream: stream,
		wait:   wait,
		clock:  clk,
		logger: logger,
	}
}

// Snapshot returns a copy of the current fix. The zero value (Valid false) means unknown.
func (c *Correlator) Snapshot() dto.GPSFix {
	if p := c.current.Load(); p != nil {
		return *p
	}
	return dto.GPSFix{}
}

// Set replaces the current fix as a whole.
func (c *Correlator) Set(fix dto.GPSFix) {
	fix.Valid = true
	c.current.Store(&fix)
	c.updates.Add(1)
}

// Updates returns how many fixes have been accepted.
func (c *Correlator) Updates() int64 {
	return c.updates.Load()
}

// Start runs the listener until Stop or ctx ends.
func (c *Correlator) Start(ctx context.Context) {
	if c.stream == nil {
		c.logger.Warning("GPS source disabled - captures will report GPS data not available")
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop ends the listener, waits for it and closes the stream. The last fix stays readable.
func (c *Correlator) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	var err error
	c.closeOnce.Do(func() {
		if c.stream != nil {
			err = c.stream.Close()
		}
	})
	return err
}

func (c *Correlator) run(ctx context.Context) {
	c.logger.Info("GPS listener started (wait %s)", c.wait)
	defer c.logger.Info("GPS listener stopped")

	for {
		fix, err := c.stream.Next(ctx, c.wait)
		switch {
		case err == nil:
			c.Set(fix)
			c.logger.Debug("GPS fix lat=%.7f lon=%.7f alt=%.2f", fix.Lat, fix.Lon, fix.Alt)
		case errors.Is(err, ErrTimeout):
			// Keep the previous fix, stale or unknown.
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrStreamClosed):
			c.logger.Warning("GPS stream closed - keeping last known fix")
			return
		default:
			c.logger.Warning("GPS read failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-c.clock.After(c.wait):
			}
		}
	}
}
