// Package runner drives sources and sinks.
//
// A PollableSourceRunner and a SinkRunner each own one goroutine that
// calls Process in a loop. When Process reports Backoff the loop sleeps
// for consecutive*increment, capped at the configured maximum; a Ready
// status resets the count. Errors are counted and followed by a sleep of
// the maximum backoff.
//
// A SinkRunner polls a SinkProcessor. The default processor passes
// through to one sink; the failover processor polls the highest priority
// live sink and moves a failing sink aside for a growing penalty.
//
// An EventDrivenSourceRunner only manages lifecycle: the source pushes
// events to its processor on its own goroutines.
//
// Each polling runner gives its goroutine a worker ID of its own, so the
// channel transactions it opens are never shared with another runner.
package runner
