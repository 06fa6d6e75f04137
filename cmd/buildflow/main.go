package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/buildflow/cmd/buildflow/commands"
	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
	"git.home.luguber.info/inful/buildflow/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("buildflow"),
		kong.Description("Task orchestrator for front-end asset builds with watch mode and a supervised dev server."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	err := ctx.Run(&commands.Global{Logger: slog.Default(), Out: os.Stdout}, &cli)
	ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
