// The main package for the indexer executable.
package main

import (
	"github.com/anvil-search/indexer/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
