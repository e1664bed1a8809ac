package main

import "github.com/agentic-research/pagetree/cmd"

func main() {
	cmd.Execute()
}
