// Command fathom runs a node of the fathom distributed search engine.
package main

import (
	"fmt"
	"os"

	"github.com/fathom-search/fathom/cmd/fathom/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
