package main

import "github.com/archers7727/rokey5/services/dispatcher/cli"

func main() {
	cli.Execute()
}
