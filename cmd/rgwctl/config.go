package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func (a *app) configCommand() *cobra.Command {
	var showSecrets bool
	cmd := &cobra.Command{
		Use:   "config [file]",
		Short: "Print the effective configuration, or save it to a file",
		Long: `config prints the configuration after the file, properties, environment
and flags have been applied. The secret key is masked unless --show-secrets
is given. With a file argument the configuration is written there instead,
secrets included, with mode 0600.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{offline: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.config.SaveToFile(args[0])
			}
			cfg := *a.config
			if cfg.Mount.SecretKey != "" && !showSecrets {
				cfg.Mount.SecretKey = "****"
			}
			data, err := yaml.Marshal(&cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print the secret key in clear")
	return cmd
}
