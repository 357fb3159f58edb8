// Package notifier delivers short operator messages (spawn alerts, errors)
// through a Sender such as the Telegram transport.
//
// Delivery is asynchronous: Notify enqueues and returns. A small worker pool
// drains the queue under a shared token-bucket rate limit, retrying failed
// sends with jittered exponential backoff. Identical messages to the same
// target within the dedup window are suppressed.
package notifier
