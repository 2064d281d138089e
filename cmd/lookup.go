package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/anidb/catalog"
	"github.com/luma/anidb/client"
	"github.com/luma/anidb/storage"
)

var LookupCmd = &cobra.Command{
	Use:   "lookup <file>...",
	Short: "Hash local files and look them up in the catalog",
	Long: `Hash local files and look them up in the catalog.

Every file found is printed as one JSON object per line. Lookups are cached
in cache_file (ANIDB_CACHE_FILE) when one is configured.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()

		conf, log, err := loadEnv(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()

		if err := requireCredentials(conf); err != nil {
			return err
		}

		cache := storage.NewInmemoryStore()
		defer cache.Close()

		if conf.CacheFile != "" {
			if err := storage.LoadFile(cache, conf.CacheFile); err != nil {
				return err
			}

			defer func() {
				err = multierr.Append(err, storage.SaveFile(cache, conf.CacheFile))
			}()
		}

		conn := client.New(conf.ClientOptions(log.Named("client")))
		session := catalog.NewSession(conn,
			catalog.Credentials{User: conf.User, Pass: conf.Pass},
			conf.Encoding,
			log.Named("session"))

		if err := session.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := teardownContext()
			defer cancel()

			err = multierr.Append(err, session.Stop(stopCtx))
		}()

		resolver := catalog.NewResolver(session, cache, log.Named("resolver"))
		results, lookupErr := resolver.LookupFiles(ctx, args)

		out := json.NewEncoder(cmd.OutOrStdout())
		for _, path := range args {
			fields, ok := results[path]
			if !ok {
				continue
			}

			if err := out.Encode(fields); err != nil {
				return err
			}
		}

		for _, err := range multierr.Errors(lookupErr) {
			log.Warn("Lookup failed", zap.Error(err))
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}

		return lookupErr
	},
}
