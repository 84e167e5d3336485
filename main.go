package main

import "github.com/pennh4i/tentacool/cmd"

func main() {
	cmd.Execute()
}
