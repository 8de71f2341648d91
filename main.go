package main

import "github.com/DominicWuest/verscepter/cmd"

func main() {
	cmd.Execute()
}
