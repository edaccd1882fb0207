// Package credential persists the client's bearer token and role label so a
// session survives process restarts.
//
// # Storage model
//
// A [Store] sits on top of a capability-typed [KV] backend. The store owns the
// credential invariant: token and role are written together, cleared together,
// and a half-written pair read back from a backend is reported as absent.
// Backends only need multi-key get/set/delete; they know nothing about tokens.
//
// Bundled backends:
//
//   - [MemoryKV]: in-process map, for tests and ephemeral clients.
//   - [FileKV]: JSON document replaced atomically through a temp file + rename.
//   - [RedisKV]: two keys under a prefix, written in one MULTI/EXEC.
//   - [SQLiteKV]: one table, written inside a single SQL transaction.
//
// # What this package must NOT do
//
//   - Make network calls to the counter service.
//   - Interpret or validate token contents.
//   - Panic on storage-medium failure. Errors wrap [ErrUnavailable].
package credential
