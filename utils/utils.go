package utils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

func PanicOnError(err error) {
	if err != nil {
		panic(err)
	}
}

func LogOnError(err error, msg string, log *logrus.Entry) {
	if err != nil {
		log.WithError(err).Warn(msg)
	}
}

// Retry calls fn until it succeeds, the context is cancelled, or attempts
// run out. attempts <= 0 means retry forever. Backoff doubles up to max.
func Retry(ctx context.Context, attempts int, base time.Duration, max time.Duration, fn func() error) error {
	delay := base
	for i := 0; ; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempts > 0 && i+1 >= attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > max {
			delay = max
		}
	}
}
