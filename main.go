package main

import "github.com/relloyd/taxipipe/cmd"

func main() {
	cmd.Execute()
}
