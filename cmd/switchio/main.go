package main

import "github.com/switchml/switchio/internal/cli"

func main() {
	cli.Execute()
}
