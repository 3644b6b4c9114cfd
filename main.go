package main

import "imagecompressor/cmd"

func main() {
	cmd.Execute()
}
