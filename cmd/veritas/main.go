// Command veritas runs the oracle consensus and compliance list service and
// carries the offline tools oracles use to produce attestations.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const programName = "veritas"

var globalFlags = struct {
	config string
}{}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           programName,
		Short:         "Oracle consensus engine for compliance whitelists and blacklists",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&globalFlags.config, "config", "",
		"path to a YAML config file (VERITAS_* environment variables override it)")

	root.AddCommand(
		serveCommand(),
		keygenCommand(),
		signCommand(),
		tokenCommand(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fail(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func fail(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "%s: %v\n", programName, err)
}
