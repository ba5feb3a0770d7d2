package provider

import (
	"context"
	"sync"

	"github.com/arcreflex/loomforest/message"
	"golang.org/x/time/rate"
)

// AdaptiveRateLimiter applies an AIMD-style token bucket in front of a
// Client: it estimates the token cost of a request, blocks the caller until
// budget is available, and halves its effective tokens-per-minute budget
// whenever the wrapped Client reports ErrorKindRateLimited, recovering
// gradually on successful calls.
//
// One limiter is meant to be shared by every request against a given
// provider+model pair within a process; it holds no cross-process state.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64
}

// NewAdaptiveRateLimiter builds a limiter with the given initial and maximum
// tokens-per-minute budget. When maxTPM is zero or less than initialTPM, it
// is clamped to initialTPM.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Wrap returns a Client that enforces this limiter before delegating to
// next.
func (l *AdaptiveRateLimiter) Wrap(next Client) Client {
	return &limitedClient{next: next, limiter: l}
}

type limitedClient struct {
	next    Client
	limiter *AdaptiveRateLimiter
}

func (c *limitedClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return Response{}, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (c *limitedClient) Stream(ctx context.Context, req Request) (Streamer, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	s, err := c.next.Stream(ctx, req)
	c.limiter.observe(err)
	return s, err
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req Request) error {
	return l.limiter.WaitN(ctx, estimateTokens(req))
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if IsRateLimited(err) {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.currentTPM * 0.5
	if next < l.minTPM {
		next = l.minTPM
	}
	l.setLocked(next)
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.currentTPM + l.recoveryRate
	if next > l.maxTPM {
		next = l.maxTPM
	}
	l.setLocked(next)
}

func (l *AdaptiveRateLimiter) setLocked(tpm float64) {
	if tpm == l.currentTPM {
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}

// estimateTokens computes a cheap heuristic for the request's token cost:
// characters across text blocks converted at ~1 token per 3 characters, plus
// a fixed buffer for system prompt and provider framing overhead.
func estimateTokens(req Request) int {
	chars := len(req.SystemMessage)
	for _, m := range req.Messages {
		for _, b := range m.Blocks() {
			if t, ok := b.(message.TextBlock); ok {
				chars += len(t.Text)
			}
		}
	}
	tokens := chars/3 + 500
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
