package main

import "github.com/nearfield/nearfield/cmd/client/cmd"

func main() {
	cmd.Execute()
}
