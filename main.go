package main

import (
	"github.com/luma/anidb/cmd"
)

func main() {
	cmd.Execute()
}
