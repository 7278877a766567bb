// Command bookingctl is the operator CLI for the booking engine: it runs
// the lifecycle jobs by hand, records attendance, seeds demo data and mints
// caller tokens for the admin API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
