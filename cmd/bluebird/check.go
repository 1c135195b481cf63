package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bluebird/internal/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file and list each instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Path(flagConfig)
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config: %s\n", path)
		fmt.Fprintf(out, "source: %s (%s)\n", cfg.Source.Type, cfg.Source.BaseURL)

		valid := 0
		for i, inst := range cfg.Instances {
			status := "ok"
			if err := inst.Validate(); err != nil {
				status = "invalid: " + err.Error()
			} else {
				valid++
			}
			fmt.Fprintf(out, "instance %d: %s [%s]\n", i, strings.Join(inst.Usernames, ", "), status)
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		if valid == 0 {
			return fmt.Errorf("no valid instances")
		}
		return nil
	},
}
