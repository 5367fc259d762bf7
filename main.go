package main

import "github.com/flowforge/copilot/cmd"

func main() {
	cmd.Execute()
}
