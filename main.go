package main

import "github.com/joy095/dispatch/cmd"

func main() {
	cmd.Execute()
}
