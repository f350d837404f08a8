// Command tzrules compiles, stores and queries time zone rules.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/ngrash/go-tzrules/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tzrules:", err)
	}
	os.Exit(cli.ExitCode(err))
}
