package main

import "trading-journal/internal/cli"

func main() {
	cli.Execute()
}
