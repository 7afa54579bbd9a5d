// Package notifier delivers short operator messages to the bot owners.
//
// Messages are queued and sent by a small worker pool behind a token bucket
// with jittered exponential retry. Identical messages inside the dedup
// window are suppressed. Notify never blocks on delivery and never reports
// failures to the caller; they are logged and published on the event bus.
package notifier
