// Package store owns the authoritative set of timers: creation with time
// spec resolution, consistent snapshot reads, atomic mutation with lifecycle
// transition enforcement, and idempotent cancellation. Mutations are
// write-through to a persistence repository and arm/disarm notifications are
// delivered to a registered scheduler hook under the same lock that
// serializes the mutation, which is what makes fire-after-cancel impossible.
package store
