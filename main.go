package main

import (
	"os"

	"github.com/scan-io-git/warden/cmd"
)

func main() {
	code := cmd.Execute()
	os.Exit(code)
}
