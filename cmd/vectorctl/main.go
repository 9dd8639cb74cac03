package main

import "github.com/Aleph-Alpha/vectorstores/internal/cli"

func main() {
	cli.Execute()
}
