package main

import "github.com/ghostcap/ghostcap/cmd"

func main() {
	cmd.Execute()
}
