package main

import (
	"adwatcher/internal/cli"
)

func main() {
	cli.Execute()
}
