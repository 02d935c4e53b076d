package main

import "touch-braille-go/internal/cli"

func main() {
	cli.Execute()
}
