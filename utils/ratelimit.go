package utils

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"onedl/internal"
)

// ByteLimiter throttles byte throughput with a token bucket. A rate of zero
// or less disables limiting.
type ByteLimiter struct {
	mutex   sync.RWMutex
	limiter *rate.Limiter
	rate    int64
}

// NewByteLimiter creates a limiter allowing bytesPerSecond with a one
// second burst
func NewByteLimiter(bytesPerSecond int64) *ByteLimiter {
	l := &ByteLimiter{}
	l.SetRate(bytesPerSecond)
	return l
}

// Wait blocks until n bytes may be consumed. Requests larger than the burst
// are split.
func (l *ByteLimiter) Wait(ctx context.Context, n int) error {
	l.mutex.RLock()
	limiter := l.limiter
	l.mutex.RUnlock()

	if limiter == nil {
		return ctx.Err()
	}

	burst := limiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := limiter.WaitN(ctx, chunk); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		n -= chunk
	}
	return nil
}

// SetRate updates the rate limit
func (l *ByteLimiter) SetRate(bytesPerSecond int64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.rate = bytesPerSecond
	if bytesPerSecond <= 0 {
		l.limiter = nil
		return
	}
	burst := int(bytesPerSecond)
	if int64(burst) != bytesPerSecond || burst <= 0 {
		burst = int(^uint(0) >> 1)
	}
	l.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}

// Rate returns the configured bytes per second, zero when unlimited
func (l *ByteLimiter) Rate() int64 {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.rate
}

var _ internal.RateLimiter = (*ByteLimiter)(nil)

// limitedReader charges every read against a RateLimiter
type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter internal.RateLimiter
}

// NewLimitedReader wraps r so reads respect limiter; a nil limiter returns r
func NewLimitedReader(ctx context.Context, r io.Reader, limiter internal.RateLimiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &limitedReader{ctx: ctx, r: r, limiter: limiter}
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.limiter.Wait(lr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// ParseRateLimit parses human-readable rate limit strings (e.g. "5M",
// "1.5MB/s", "500K"). Multiples are binary.
func ParseRateLimit(rateStr string) (int64, error) {
	rateStr = strings.TrimSpace(rateStr)
	rateStr = strings.TrimSuffix(strings.TrimSuffix(rateStr, "/s"), "/S")

	n, err := internal.ParseByteSize(rateStr)
	if err != nil {
		return 0, fmt.Errorf("invalid rate limit: %w", err)
	}
	return n, nil
}
