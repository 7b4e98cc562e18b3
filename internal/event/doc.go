// Package event is the typed publish/subscribe boundary for timer lifecycle
// events (expiry, snooze, dismiss, cancel and their request counterparts).
// Delivery is at-least-once to all current subscribers; slow subscribers are
// dropped rather than allowed to block the publisher.
package event
