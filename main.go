// The main package for the govpulse executable.
package main

import (
	"github.com/fanyang-dev/govpulse/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
