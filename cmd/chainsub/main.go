package main

import "github.com/vietddude/chainsub/internal/cli"

func main() {
	cli.Execute()
}
