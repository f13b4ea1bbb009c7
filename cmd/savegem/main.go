package main

import (
	"os"

	"github.com/dl-alexandre/savegem/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
