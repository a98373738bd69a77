package main

import (
	"os"

	"github.com/SaadAlam/aws-outbound-federation-demo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
