// Package syncer implements the offline-first synchronization engine for
// project data.
//
// The engine mediates between caller intent (create, edit, delete), the
// connectivity monitor, the remote gateway, and the local store. While
// online, mutations are applied remotely and then mirrored into the local
// cache; while offline, they are appended to a pending queue and applied
// to the cache optimistically, so the caller always sees their own writes
// immediately. Replay drains the queue in enqueue order once connectivity
// returns.
//
// All engine operations serialize on one internal mutex, making the engine
// the single writer of both store collections. Two racing callers therefore
// cannot lose a queued operation to a read-modify-write overlap.
package syncer
