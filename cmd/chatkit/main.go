package main

import (
	"os"

	"github.com/omnisupport/chatkit/cmd/chatkit/cmds"
)

func main() {
	if err := cmds.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
