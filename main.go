package main

import (
	"context"
	"os"

	"ticket-wallet/cmd"
)

const appName = "ticket-wallet"

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(cmd.Execute(context.Background(), cmd.Build{
		Name:    appName,
		Version: version,
		Commit:  commit,
	}))
}
