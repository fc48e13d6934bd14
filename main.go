// The main package for the parcel-report-pdf executable.
package main

import (
	_ "github.com/joho/godotenv/autoload"

	"github.com/JakeFAU/parcel-report-pdf/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
