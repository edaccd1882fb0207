// Package internal contains helpers private to goCounter.
//
// # Sub-packages
//
//   - counterstub: in-process test double of the counter service
//   - rate: Redis fixed-window failed-login limiter used by counterstub
//
// # What this package must NOT do
//
//   - Export types that appear in the public goCounter API.
//   - Be imported by any package outside the goCounter module.
package internal
