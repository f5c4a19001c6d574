package flagstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fcaptcha/clickguard/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	visitorKey = "cg:%s:%s"

	defaultTimeout = 2 * time.Second
)

// Jar is one visitor's view of a Backend. It never fails: a read error reads
// as an absent flag and a write error drops the write, so an unavailable
// store lets every navigation through.
type Jar struct {
	backend Backend
	visitor string
	logger  *logrus.Logger
	timeout time.Duration
}

// NewJar scopes backend to visitor.
func NewJar(backend Backend, visitor string, logger *logrus.Logger) *Jar {
	return &Jar{
		backend: backend,
		visitor: visitor,
		logger:  logger,
		timeout: defaultTimeout,
	}
}

// Visitor returns the visitor the jar is scoped to.
func (j *Jar) Visitor() string {
	return j.visitor
}

func (j *Jar) key(name string) string {
	return fmt.Sprintf(visitorKey, j.visitor, name)
}

// Get returns the flag value, or "" when it is absent or unreadable.
func (j *Jar) Get(ctx context.Context, name string) string {
	if j.backend == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	val, err := j.backend.Get(ctx, j.key(name))
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get").Inc()
		j.logger.WithError(err).WithFields(logrus.Fields{
			"visitor": j.visitor,
			"flag":    name,
		}).Warn("flag read failed, treating as absent")
		return ""
	}
	return val
}

// Set writes the flag. Failures are logged and otherwise ignored.
func (j *Jar) Set(ctx context.Context, name, value string, ttl time.Duration) {
	if j.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if err := j.backend.Set(ctx, j.key(name), value, ttl); err != nil {
		metrics.StoreErrors.WithLabelValues("set").Inc()
		j.logger.WithError(err).WithFields(logrus.Fields{
			"visitor": j.visitor,
			"flag":    name,
		}).Warn("flag write failed, dropping")
		return
	}
	metrics.FlagWrites.WithLabelValues(name).Inc()
}

// Reset removes the named flags.
func (j *Jar) Reset(ctx context.Context, names ...string) {
	if j.backend == nil || len(names) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	keys := make([]string, 0, len(names))
	for _, n := range names {
		keys = append(keys, j.key(n))
	}
	if err := j.backend.Delete(ctx, keys...); err != nil {
		metrics.StoreErrors.WithLabelValues("delete").Inc()
		j.logger.WithError(err).WithField("visitor", j.visitor).Warn("flag reset failed")
	}
}

// Inspect reads the named flags. Absent flags are reported as "".
func (j *Jar) Inspect(ctx context.Context, names ...string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = j.Get(ctx, n)
	}
	return out
}
