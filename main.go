package main

import "github.com/nextlevelbuilder/papersync/cmd"

func main() {
	cmd.Execute()
}
