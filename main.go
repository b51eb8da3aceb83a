package main

import "github.com/DominicWuest/versect/cmd"

func main() {
	cmd.Execute()
}
