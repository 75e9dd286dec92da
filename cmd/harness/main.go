// Package main is the entry point of the pub/sub harness.
package main

import (
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}
