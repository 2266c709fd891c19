package main

import "github.com/clipwright/clipwright/internal/cli"

func main() {
	cli.Main()
}
