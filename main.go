package main

import "agentsync/cmd"

func main() {
	cmd.Execute()
}
