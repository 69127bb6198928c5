package main

import "github.com/ubuntu-core/serial-vault-charm/cmd"

// Version can be set during build with -ldflags
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
