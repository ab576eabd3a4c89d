package main

import "github.com/reldo-dev/reldo/cmd/reldo/commands"

func main() {
	commands.Execute()
}
