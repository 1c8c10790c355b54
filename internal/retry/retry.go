package retry

import (
	"context"
	"errors"
	"time"
)

// PermanentError marks an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Policy.Do stops immediately. nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pErr *PermanentError
	return errors.As(err, &pErr)
}

// ErrWaitBudget is joined to the last error when the next backoff would
// exceed MaxWait.
var ErrWaitBudget = errors.New("retry: wait budget exhausted")

// Policy is an exponential backoff schedule bounded both by attempt count
// and by the total time spent sleeping between attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration // cap for a single backoff; 0 means uncapped
	MaxWait     time.Duration // cap for the sum of backoffs; 0 means uncapped
	Multiplier  float64       // defaults to 2

	// Sleep is used between attempts; tests replace it to avoid real waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default mirrors the tenacity policy of the original migration tool:
// 3 attempts, exponential backoff between 4s and 10s.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   4 * time.Second,
		MaxDelay:    10 * time.Second,
		MaxWait:     30 * time.Second,
		Multiplier:  2,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	return p
}

// Delay returns the backoff after the given zero-based failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	out := time.Duration(d)
	if p.MaxDelay > 0 && out > p.MaxDelay {
		out = p.MaxDelay
	}
	return out
}

// Do calls fn until it succeeds, returns a permanent error, the context is
// done, or the attempt/wait budget runs out. fn receives the zero-based
// attempt number. The returned error is the last one fn produced.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	p = p.normalized()
	var waited time.Duration
	var last error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return errors.Join(last, err)
			}
			return err
		}
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		last = err
		if IsPermanent(err) {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		d := p.Delay(attempt)
		if p.MaxWait > 0 && waited+d > p.MaxWait {
			return errors.Join(last, ErrWaitBudget)
		}
		if err := p.Sleep(ctx, d); err != nil {
			return errors.Join(last, err)
		}
		waited += d
	}
	return last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
