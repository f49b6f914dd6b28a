package watcher

import (
	"errors"
	"math/rand"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"semwatch/models"
	"semwatch/modules/throttle"
)

const (
	// DefaultStatTimeout bounds how long a single metadata read is
	// waited on before its result is discarded.
	DefaultStatTimeout = 250 * time.Millisecond

	// maxStatAttempts is the initial read plus four retries.
	maxStatAttempts = 5

	// maxRetryJitter is the upper bound of the random pause between
	// retries of a transiently failing read.
	maxRetryJitter = 100 * time.Millisecond
)

// statFunc reads the metadata of one path. Swapped out in tests.
type statFunc func(path string) (models.Metadata, error)

// StatGateway wraps the metadata syscall with throttle admission, a
// fixed timeout and jittered retries for transient errors. It is the
// only way the engine reads entry metadata.
type StatGateway struct {
	clock    clock.Clock
	throttle *throttle.Throttle
	timeout  time.Duration
	stat     statFunc
}

// NewStatGateway creates a gateway issuing metadata reads through th. A
// zero timeout selects DefaultStatTimeout.
func NewStatGateway(c clock.Clock, th *throttle.Throttle, timeout time.Duration) *StatGateway {
	if c == nil {
		c = clock.New()
	}
	if th == nil {
		th = throttle.Default()
	}
	if timeout <= 0 {
		timeout = DefaultStatTimeout
	}

	return &StatGateway{
		clock:    c,
		throttle: th,
		timeout:  timeout,
		stat:     models.Stat,
	}
}

// GetStats returns the current metadata of path, or nil when the path
// does not resolve to a regular file or directory. Transient errors are
// retried with jitter; every other failure, timeouts included, is
// reported as absence. A read that outlives the timeout keeps running,
// its late result is discarded.
func (g *StatGateway) GetStats(path string) *models.Metadata {
	type result struct {
		md  models.Metadata
		err error
	}

	for attempt := 0; attempt < maxStatAttempts; attempt++ {
		release := g.throttle.Schedule()

		done := make(chan result, 1)
		go func() {
			md, err := g.stat(path)
			done <- result{md: md, err: err}
		}()

		var res result
		timer := g.clock.Timer(g.timeout)
		select {
		case res = <-done:
			timer.Stop()
			release()
		case <-timer.C:
			release()
			return nil
		}

		if res.err == nil {
			if !res.md.Supported() {
				return nil
			}
			return &res.md
		}

		if !retryableStatError(res.err) {
			return nil
		}

		g.clock.Sleep(time.Duration(rand.Int63n(int64(maxRetryJitter))))
	}

	return nil
}

// retryableStatError reports whether err is one of the transient
// conditions worth another attempt: a not-found race, descriptor
// exhaustion, a busy entry, a transient permission error, or a
// would-block signal.
func retryableStatError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	switch errno {
	case syscall.ENOENT, syscall.EMFILE, syscall.ENFILE,
		syscall.EBUSY, syscall.EPERM, syscall.EAGAIN:
		return true
	}
	return false
}
