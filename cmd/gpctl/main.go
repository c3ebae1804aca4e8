package main

import "github.com/mcoot/gamelobby-go/internal/cli"

func main() {
	cli.Execute()
}
