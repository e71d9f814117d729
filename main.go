package main

import "github.com/smazurov/mkctl/cmd"

func main() {
	cmd.Execute()
}
