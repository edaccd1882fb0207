// Command counterctl drives a counter service from the terminal.
//
// Usage:
//
//	counterctl [flags] <command> [args]
//
// Commands:
//
//	register <username> <password>
//	login <username> <password>
//	logout
//	status
//	get
//	inc [-n N]
//	reset
//	passwd <old> <new>
//	serve-metrics [-interval D]
//	stub-server
//
// Every flag has a GOCOUNTER_* environment counterpart; flags win. The session
// persists in the configured credential store between invocations.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], nil, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
