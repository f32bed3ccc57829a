package main

import (
	"os"

	"github.com/orbyt-dev/orbyt/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
