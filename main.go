package main

import "hotfolder/cmd"

func main() {
	cmd.Execute()
}
