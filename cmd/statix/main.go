package main

import "github.com/GustavPetterssonBjorklund/Statix/cmd/statix/cmd"

func main() {
	cmd.Execute()
}
