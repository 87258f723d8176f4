package main

import "github.com/devicelab-dev/adaptive-selector/pkg/cli"

func main() {
	cli.Execute()
}
