package main

import "github.com/dyike/CortexReport/internal/cli"

func main() {
	cli.Run()
}
