// Package updatequeue implements the asynchronous refresh engine that sits
// between a cache dictionary's lookup path and its backing source.
//
// A lookup that misses the cache (or finds expired entries) builds an
// UpdateUnit for the affected keys and pushes it onto a bounded FIFO queue.
// A fixed pool of workers drains the queue and invokes the dictionary's
// update function on each unit exactly once. The producer either returns
// immediately (asynchronous refresh) or blocks on the unit's completion
// (synchronous refresh), observing any error the update function produced.
//
// The bounded queue plus push/wait timeouts are the system's sole
// backpressure mechanism: a saturated backing source makes producers fail
// fast instead of building unbounded memory pressure.
package updatequeue
