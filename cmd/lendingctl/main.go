// lendingctl is a command line front end for the lending engine. It manages
// the catalog, drives borrow/return/rate flows and prints results as JSON.
//
// By default it works against a local SQLite database file; --postgres
// switches to the PostgreSQL store configured via the environment.
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
