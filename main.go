package main

import "MusicManager/cmd"

func main() {
	cmd.Execute()
}
