package updatequeue

import "time"

// Defaults applied by Configuration.withDefaults.
const (
	DefaultCapacity    = 100000
	DefaultWorkers     = 4
	DefaultPushTimeout = 10 * time.Millisecond
	DefaultWaitTimeout = 60 * time.Second
)

// Configuration holds the queue's static tunables. All fields are fixed at
// queue construction and immutable thereafter.
type Configuration struct {
	// Capacity bounds the number of enqueued units. Zero is valid: a
	// zero-capacity queue hands units directly to a worker already blocked
	// in pop, and every other push times out.
	Capacity int

	// Workers is the fixed number of update workers. No dynamic scaling.
	Workers int

	// PushTimeout bounds how long TryPush blocks for queue space.
	PushTimeout time.Duration

	// WaitTimeout bounds how long WaitForUpdateFinish blocks for a unit's
	// completion.
	WaitTimeout time.Duration
}

// DefaultConfiguration returns a Configuration with all defaults applied.
func DefaultConfiguration() Configuration {
	return Configuration{Capacity: DefaultCapacity}.withDefaults()
}

// withDefaults fills unset fields. Capacity is the exception: zero is a
// meaningful value, so only negative capacities are normalized.
func (c Configuration) withDefaults() Configuration {
	if c.Capacity < 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = DefaultPushTimeout
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	return c
}
