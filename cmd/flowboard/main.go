package main

import "flowboard/cmd/cli"

func main() {
	cli.Execute()
}
