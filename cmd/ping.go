package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/luma/anidb/client"
)

var PingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the API server answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()

		conf, log, err := loadEnv(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		conn := client.New(conf.ClientOptions(log.Named("client")))
		if err := conn.Connect(ctx); err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := teardownContext()
			defer cancel()

			err = multierr.Append(err, conn.Close(closeCtx))
		}()

		start := time.Now()
		if err := conn.Ping(ctx); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "PONG from %s:%d in %s\n",
			conf.Host, conf.Port, time.Since(start).Round(time.Millisecond))

		version, err := conn.Version(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Server version %s\n", version)
		return nil
	},
}
