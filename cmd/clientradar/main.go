package main

import "github.com/mfreeman451/clientradar/pkg/cli"

func main() {
	cli.Execute()
}
