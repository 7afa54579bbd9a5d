// Package distribution fans content out to recipients in fixed-size chunks.
//
// Chunks run one after another with a fixed pause between them. Inside a
// chunk every recipient is served by its own goroutine and the chunk waits
// for all of them. Send failures are classified as permanent (the recipient
// blocked the bot or no longer exists) or transient. Permanent failures are
// handed to a prune callback at most once per recipient per run.
package distribution
