package main

import "poscore/internal/cli"

func main() {
	cli.Execute()
}
