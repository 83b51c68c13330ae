package main

import "github.com/rescuedogs/aggregator/cmd/aggregator/cmd"

func main() {
	cmd.Execute()
}
