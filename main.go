package main

import (
	"github.com/mbrownnycnyc/signalerr/cmd"
)

var version = "dev"

func main() {
	cmd.Version = version
	cmd.Execute()
}
