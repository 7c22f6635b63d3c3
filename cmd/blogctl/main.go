// Package main is the entry point for blogctl.
package main

import (
	"os"

	"github.com/jrsteele09/go-blog-client/cmd/blogctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
