// Command lock-test exercises the database write lock one step at a time.
//
// It prints "start", opens the database and prints "pre-lock". After one line on
// stdin it acquires the lock, printing "blocked" if another process holds it for
// longer than --blocked-delay, then prints "holding-lock". After a second line it
// commits, releases the lock, prints "done" and exits 0. Errors go to stderr with
// exit status 1.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lock-test: %v\n", err)
		os.Exit(1)
	}
}
