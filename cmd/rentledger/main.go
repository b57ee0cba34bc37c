package main

import "github.com/matthewbaird/rentledger/internal/cli"

func main() {
	cli.Execute()
}
