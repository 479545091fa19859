// Command kargs inspects kernel argument layouts and dry-runs argument
// capture against a device.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "kargs",
		Usage: "Kernel argument layout and capture tool",
		Flags: globalFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			applyGlobalConfig(cmd, LoadConfig(configFile))
			return ctx, setupLogging(logLevel, logFormat)
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			inspectCmd(),
			captureCmd(),
		},
	}

	err := app.Run(context.Background(), os.Args)
	_ = logger.Sync()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, newStyles(useColor(colorMode)).errorS.Render(err.Error()))
		os.Exit(1)
	}
}
