package main

import "github.com/nextlevelbuilder/gagbot/cmd"

func main() {
	cmd.Execute()
}
