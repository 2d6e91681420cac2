package main

import (
	"os"

	"bankcap/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
