package main

import (
	"fmt"
	"os"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/gconf"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	root := &cobra.Command{
		Use:           "escrowd",
		Short:         "Multi-signature escrow daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "configuration file (yaml, toml or json)")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := gconf.Load(v, configFile)
			if err != nil {
				return err
			}
			return start(conf)
		},
	}
	startCmd.Flags().String("http-addr", "", "address the HTTP API listens on")
	startCmd.Flags().String("storage-path", "", "directory of the database")
	startCmd.Flags().Bool("debug", false, "expose internal error details")
	_ = v.BindPFlag("http.addr", startCmd.Flags().Lookup("http-addr"))
	_ = v.BindPFlag("storage.path", startCmd.Flags().Lookup("storage-path"))
	_ = v.BindPFlag("debug", startCmd.Flags().Lookup("debug"))

	config := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := gconf.Load(v, configFile); err != nil {
				return err
			}
			v.Set("wallet.passphrase", "<redacted>")
			raw, err := yaml.Marshal(v.AllSettings())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), escrowd.Version())
		},
	}

	root.AddCommand(startCmd, config, version)
	return root
}
