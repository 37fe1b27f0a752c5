package main

import (
	"fmt"
	"os"

	"github.com/instruqt/armlab/cmd/root"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

func main() {
	if err := root.NewRootCmd(Version).Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
