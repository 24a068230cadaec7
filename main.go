// The main package for the tracker executable.
package main

import "github.com/JakeFAU/release-tracker/cmd"

func main() {
	cmd.Execute()
}
