// The main package for the newscrawler executable.
package main

import (
	"github.com/verifysource/newscrawler/cmd"
)

func main() {
	cmd.Execute()
}
