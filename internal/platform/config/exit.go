package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// ExitCode maps a startup error to a process status. A help request is not a
// failure.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return 0
	}
	return 1
}

// Exit reports a startup error on stderr as "program: err" and terminates
// with ExitCode(err). Commands call it before the log prefix is set.
func Exit(program string, err error) {
	code := ExitCode(err)
	if code != 0 {
		fmt.Fprintf(os.Stderr, "%s: %v\n", program, err)
	}
	os.Exit(code)
}
