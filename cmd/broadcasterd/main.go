// Package main is the entry point for broadcasterd.
package main

import (
	"github.com/lavacaster/broadcaster/cmd/broadcasterd/cmd"
)

func main() {
	cmd.Execute()
}
