// Command perf-analysis is the retained-path analyzer CLI.
package main

import (
	"github.com/perf-analysis/cmd/cli/cmd"
)

func main() {
	cmd.Execute()
}
