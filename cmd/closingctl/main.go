/*
closingctl - command-line access to the closing engine

COMMANDS:
  periods    Next closing and its period, or every closing in a range
  closings   A user's upcoming and past closings
  breakdown  Load one closing and print its per-group totals

STORE:
  closings and breakdown read the store configured by the environment
  (see cmd/server). --demo swaps in the bundled demo dataset in memory.

Output is JSON on stdout.
*/
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
