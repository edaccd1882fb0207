// Package counterstub is an in-memory implementation of the counter service
// HTTP contract, used by tests, examples and the counterctl stub-server
// command.
//
// It mirrors the production service's status codes and error texts:
// registration defaults to the "user" role, only "admin" may reset, and a
// missing or invalid bearer token is answered with 401. Fault injection
// (FailNext, DropNext, Hold) lets tests drive the client through failure and
// ordering paths deterministically.
//
// # What this package must NOT do
//
//   - Persist anything. State lives and dies with the Server value.
//   - Serve as a production backend.
package counterstub
