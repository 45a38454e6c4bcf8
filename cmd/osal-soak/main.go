// Command osal-soak runs periodic workers, sharing recursive locks, under
// load, and prints a YAML report of how each worker exited.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
