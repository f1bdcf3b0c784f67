package main

import "github.com/taskbridgehq/taskbridge/cmd"

func main() {
	cmd.Execute()
}
