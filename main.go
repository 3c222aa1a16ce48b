package main

import "github.com/KostasZigo/gitree/cmd"

func main() {
	cmd.Execute()
}
