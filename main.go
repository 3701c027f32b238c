package main

import "github.com/mosaichq/backoffice/cmd"

func main() {
	cmd.Execute()
}
