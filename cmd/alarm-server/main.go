package main

import "github.com/LeoXDXp/ACS/cmd/alarm-server/cmd"

func main() {
	cmd.Execute()
}
