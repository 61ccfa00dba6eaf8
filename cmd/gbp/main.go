package main

import "github.com/enku/gentoo-build-publisher/cmd/gbp/cmd"

func main() {
	cmd.Execute()
}
