package main

import (
	"context"
	"fmt"
	"os"

	"pctasks/app/cli"
)

func main() {
	err := cli.NewRootCmd().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	os.Exit(cli.ExitCode(err))
}
