// The main package for the lexharvest executable.
package main

import (
	"github.com/civicarchive/lexharvest/cmd"
)

func main() {
	cmd.Execute()
}
