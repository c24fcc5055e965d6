package main

import "github.com/LeoXDXp/ACS/cmd/alarm-raise/cmd"

func main() {
	cmd.Execute()
}
