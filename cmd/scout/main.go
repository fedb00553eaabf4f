package main

import "github.com/probelab/scout/internal/cli"

func main() {
	cli.Execute()
}
