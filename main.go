// The main package for the directory-crawler executable.
package main

import (
	"github.com/JakeFAU/directory-crawler/cmd"
)

// main defers all execution to the cobra CLI.
func main() {
	cmd.Execute()
}
