package main

import "multitrack/cmd"

func main() {
	cmd.Execute()
}
