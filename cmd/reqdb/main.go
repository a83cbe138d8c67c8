// Command reqdb serves a small notes API where every request runs on its own
// database handle: reads on a pooled connection, writes in a transaction.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
