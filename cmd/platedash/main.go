package main

import "github.com/jmcleod/platedash/cmd/platedash/cmd"

func main() {
	cmd.Execute()
}
