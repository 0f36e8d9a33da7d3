// Package main is the entry point for the beanquery CLI.
package main

import (
	"os"

	"github.com/shunichi-ikebuchi/beanquery/cmd/beanquery/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
