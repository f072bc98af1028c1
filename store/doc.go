// Package store defines the persistence contracts of the flow engine: the
// live ConversationState of each conversation and the append-only
// checkpoint timeline used for debugging and replay.
//
// Backends live in the subpackages memory, redis, sqlite and postgres and
// all implement store.Store.
package store
