package main

import "github.com/sagemath/sage-spkg/cmd"

func main() {
	cmd.Execute()
}
