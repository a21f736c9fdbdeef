package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/advanderveer/at2/ledger/node"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runConf string

func init() {
	runCmd.Flags().StringVarP(&runConf, "config", "c", "-", "config file, '-' reads it from stdin")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a node until it is interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		c, err := openConf(runConf)
		if err != nil {
			return err
		}

		logs := logrus.New()
		logs.SetOutput(os.Stderr)
		lvl, err := logrus.ParseLevel(c.LogLevel)
		if err != nil {
			return errors.Wrap(err, "invalid log level")
		}

		logs.SetLevel(lvl)

		n, err := node.New(logs, c)
		if err != nil {
			return errors.Wrap(err, "failed to setup node")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return n.Run(ctx)
	},
}
