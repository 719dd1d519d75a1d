package scoring

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"google.golang.org/genai"
)

// retry calls fn until it succeeds, returns a permanent error, runs out of
// retries or ctx is done.
func retry[T any](ctx context.Context, b backoff.BackOff, retries uint64, notify backoff.Notify, fn func() (T, error)) (T, error) {
	return backoff.RetryNotifyWithData(fn, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx), notify)
}

// Retryable reports whether a failed oracle call is worth repeating.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusRequestTimeout || apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return true
}

// RetryOracle wraps an Oracle with bounded, jittered exponential backoff.
type RetryOracle struct {
	next       Oracle
	retries    uint64
	newBackOff func() backoff.BackOff
	notify     backoff.Notify
}

// WithRetry returns next unchanged when retries is not positive.
func WithRetry(next Oracle, retries int, notify backoff.Notify) Oracle {
	if retries <= 0 {
		return next
	}
	return &RetryOracle{
		next:       next,
		retries:    uint64(retries),
		newBackOff: defaultBackOff,
		notify:     notify,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 8 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (o *RetryOracle) Score(ctx context.Context, doc []byte, mime, jobTitle string) (*Evaluation, error) {
	return retry(ctx, o.newBackOff(), o.retries, o.notify, func() (*Evaluation, error) {
		ev, err := o.next.Score(ctx, doc, mime, jobTitle)
		if err != nil && !Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return ev, err
	})
}
