package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bluebird/internal/config"
	"bluebird/internal/logging"
	"bluebird/internal/storage/archive"
)

var (
	flagAccount string
	flagLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently delivered notifications from the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Path(flagConfig)
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		db, err := archive.Open(cmd.Context(), cfg.Archive.Driver, cfg.Archive.DSN())
		if err != nil {
			return err
		}
		defer db.Close()

		store := archive.NewStore(db, logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat))
		records, err := store.Recent(cmd.Context(), flagAccount, flagLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NOTIFIED\tACCOUNT\tACTION\tURL")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.NotifiedAt.Local().Format("2006-01-02 15:04:05"), r.Account, r.Action, r.URL)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVar(&flagAccount, "account", "", "only show this account")
	historyCmd.Flags().IntVar(&flagLimit, "limit", 20, "number of notifications to show")
}
