package main

import "github.com/GustavPetterssonBjorklund/Statix/cmd/statix-agent/cmd"

func main() {
	cmd.Execute()
}
