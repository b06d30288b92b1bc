package main

import "github.com/gatherspace/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
