package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var configGen = &cobra.Command{
	Use:   "generate",
	Short: "Generate a config",
	Long:  "Generate a config file from the current flags, to use for porcupine. The config file is placed at the --target location",
	Run: func(cmd *cobra.Command, args []string) {
		o, err := yaml.Marshal(configFromFlags(&porcupineFlags))
		if err != nil {
			wrapFatalln("serialize config to yaml", err)
			return
		}

		target := porcupineFlags.config.target
		if dir := filepath.Dir(target); dir != "" {
			_ = os.MkdirAll(dir, 0700)
		}
		if err = os.WriteFile(target, o, 0600); err != nil {
			wrapFatalln("write config file", err)
			return
		}
		infoLogger(cmd).Printf("config written to %s\n", target)
	},
}

func init() {
	addTargetFlag(configGen)

	configCmd.AddCommand(configGen)
}
