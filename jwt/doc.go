// Package jwt handles counter-service access tokens: signing and verification
// for a server-side [Manager], and unverified [Inspect] for clients that only
// want to show who they are logged in as and when the token lapses.
package jwt
