package main

import (
	cmd "github.com/kerbaras/mangadex-dl/cmd/mangadexdl"
)

func main() {
	cmd.Execute()
}
