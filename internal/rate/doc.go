// Package rate counts failed logins per username in Redis.
//
// Fixed-window counters: INCR plus EXPIRE on the first hit of a window. Keys
// are "<prefix>:login:<username>".
package rate
