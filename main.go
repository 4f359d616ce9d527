package main

import "github.com/KaramelBytes/statloom-cli/cmd"

func main() {
	cmd.Execute()
}
