// Command orgest sorts a folder tree: it removes duplicates, files
// everything by type, converts stray formats, pulls files up to the root,
// shrinks media and cleans up after itself.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
