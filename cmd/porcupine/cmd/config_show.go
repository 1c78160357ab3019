package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var configShow = &cobra.Command{
	Use:   "show",
	Short: "Print the config used",
	Long:  "Print the config resulting from the config file, the environment and the flags of this invocation",
	Run: func(cmd *cobra.Command, args []string) {
		o, err := yaml.Marshal(configFromFlags(&porcupineFlags))
		if err != nil {
			wrapFatalln("serialize config to yaml", err)
			return
		}
		_, _ = cmd.OutOrStdout().Write(o)
	},
}

func init() {
	configCmd.AddCommand(configShow)
}
