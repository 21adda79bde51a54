package main

import "pipekit/cmd"

func main() {
	cmd.Execute()
}
