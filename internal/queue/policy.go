package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Name is a logical queue name
type Name string

const (
	Publish    Name = "social:publish"
	Verify     Name = "social:verify"
	Trend      Name = "analytics:trend"
	Competitor Name = "analytics:competitor"
)

// ErrUnknownQueue is returned for queue names outside the fixed set
var ErrUnknownQueue = errors.New("unknown queue")

// Names returns all logical queues
func Names() []Name {
	return []Name{Publish, Verify, Trend, Competitor}
}

// ParseName accepts either the full name ("social:publish") or its short form ("publish")
func ParseName(s string) (Name, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range Names() {
		if s == string(n) || s == n.Short() {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownQueue, s)
}

// Short returns the part after the namespace, e.g. "publish"
func (n Name) Short() string {
	if i := strings.LastIndexByte(string(n), ':'); i >= 0 {
		return string(n)[i+1:]
	}
	return string(n)
}

func (n Name) String() string {
	return string(n)
}

// Backoff is an exponential retry delay: Base * 2^(attempt-1)
type Backoff struct {
	Base time.Duration
}

// Delay returns the wait before the given retry (1-based)
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// cap the shift so large attempt counts don't overflow
	if attempt > 20 {
		attempt = 20
	}
	return b.Base << (attempt - 1)
}

// Retention controls how long finished jobs stay inspectable
type Retention struct {
	CompletedAge   time.Duration
	CompletedCount int
	FailedAge      time.Duration
	FailedCount    int
	// KeepFailed exempts failed jobs from the janitor. The broker still
	// drops archived jobs on its own limits (90 days or 10000 per queue).
	KeepFailed bool
}

// DefaultRetention keeps completed jobs for 7 days (max 1000) and failed ones for 30 days (max 5000)
var DefaultRetention = Retention{
	CompletedAge:   7 * 24 * time.Hour,
	CompletedCount: 1000,
	FailedAge:      30 * 24 * time.Hour,
	FailedCount:    5000,
}

// Policy is the retry/timeout/retention configuration of a queue
type Policy struct {
	Attempts  int
	Backoff   Backoff
	Timeout   time.Duration
	Retention Retention
	// Repeat is the default cron pattern for recurring jobs, empty if none
	Repeat string
}

// MaxRetry is the number of retries after the first attempt
func (p Policy) MaxRetry() int {
	if p.Attempts <= 1 {
		return 0
	}
	return p.Attempts - 1
}

// PolicyFor returns the fixed policy of a queue
func PolicyFor(n Name) Policy {
	switch n {
	case Publish:
		r := DefaultRetention
		r.KeepFailed = true
		return Policy{
			Attempts:  5,
			Backoff:   Backoff{Base: 5 * time.Second},
			Timeout:   5 * time.Minute,
			Retention: r,
		}
	case Verify:
		return Policy{
			Attempts:  3,
			Backoff:   Backoff{Base: 2 * time.Second},
			Timeout:   30 * time.Second,
			Retention: DefaultRetention,
		}
	case Trend:
		return Policy{
			Attempts:  3,
			Backoff:   Backoff{Base: 3 * time.Second},
			Timeout:   2 * time.Minute,
			Retention: DefaultRetention,
			Repeat:    "0 */6 * * *",
		}
	case Competitor:
		return Policy{
			Attempts:  3,
			Backoff:   Backoff{Base: 3 * time.Second},
			Timeout:   3 * time.Minute,
			Retention: DefaultRetention,
		}
	}
	panic(fmt.Sprintf("queue: no policy for %q", n))
}
