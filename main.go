package main

import (
	"os"

	"github.com/ibeckermayer/webprobe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
