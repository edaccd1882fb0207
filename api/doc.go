// Package api is the HTTP client for the counter service.
//
// # Architecture boundaries
//
// Client performs one request per endpoint and classifies every response into
// an [Outcome]: success, unauthorized, or failure. It holds no session state;
// the bearer token is passed in by the caller on every authenticated call.
//
// # What this package must NOT do
//
//   - Retry requests. A failed call is reported once and the caller decides.
//   - Treat 401 on /login or /register as unauthorized. There is no session
//     to tear down on those endpoints, so they are ordinary failures.
//   - Enforce roles locally. Reset is always sent; a 403 comes back as a failure.
package api
