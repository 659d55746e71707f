package gps

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"aerialcapture/internal/dto"
)

// latestFix hands fixes from a reader goroutine to Next. Only the newest unread fix is kept.
type latestFix struct {
	clock clock.Clock
	fixes chan dto.GPSFix
	done  chan struct{}
	once  sync.Once
}

func newLatestFix(clk clock.Clock) *latestFix {
	if clk == nil {
		clk = clock.New()
	}
	return &latestFix{
		clock: clk,
		fixes: make(chan dto.GPSFix, 1),
		done:  make(chan struct{}),
	}
}

func (l *latestFix) offer(fix dto.GPSFix) {
	for {
		select {
		case l.fixes <- fix:
			return
		default:
		}
		select {
		case <-l.fixes:
		default:
		}
	}
}

// finish marks the source as exhausted.
func (l *latestFix) finish() {
	l.once.Do(func() { close(l.done) })
}

func (l *latestFix) next(ctx context.Context, timeout time.Duration) (dto.GPSFix, error) {
	timer := l.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case fix := <-l.fixes:
		return fix, nil
	default:
	}

	select {
	case fix := <-l.fixes:
		return fix, nil
	case <-l.done:
		return dto.GPSFix{}, ErrStreamClosed
	case <-timer.C:
		return dto.GPSFix{}, ErrTimeout
	case <-ctx.Done():
		return dto.GPSFix{}, ctx.Err()
	}
}
