package main

import (
	"github.com/oshokin/hang-sentinel/cmd/hang-sentinel/cmd"
)

func main() {
	cmd.Execute()
}
