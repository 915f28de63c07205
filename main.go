package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/lehigh-university-libraries/colmap2mesh/cmd"
)

const version = "0.1.0"

func main() {
	root := cmd.NewRootCmd()

	// Interrupts cancel the command context, which kills the running tool.
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
