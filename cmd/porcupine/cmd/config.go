package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CLIConfig describes the CLI configuration.
//
// Flags set explicitly on the command line take precedence over the configuration.
type CLIConfig struct {
	// keep field names the same as the serialized names: viper matches them case-insensitively
	Backend    string  `json:"backend" yaml:"backend"`
	Path       string  `json:"path" yaml:"path"`
	Tree       string  `json:"tree" yaml:"tree"`
	Extent     string  `json:"extent" yaml:"extent"`
	Contention float64 `json:"contention" yaml:"contention"`
	Cache      string  `json:"cache" yaml:"cache"`
	LogLevel   string  `json:"loglevel" yaml:"loglevel"`
}

func newConfig() (*CLIConfig, error) {
	var config CLIConfig
	err := viper.Unmarshal(&config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *CLIConfig) setPorcupineParams(flags *flagsT) {
	set := rootCmd.PersistentFlags().Changed
	for _, param := range []struct {
		flag   string
		value  string
		target *string
	}{
		{flag: "backend", value: c.Backend, target: &flags.store.backend},
		{flag: "path", value: c.Path, target: &flags.store.path},
		{flag: "tree", value: c.Tree, target: &flags.tree.name},
		{flag: "extent", value: c.Extent, target: &flags.tree.extent},
		{flag: "cache", value: c.Cache, target: &flags.tree.cache},
		{flag: "loglevel", value: c.LogLevel, target: &flags.root.logLevel},
	} {
		if param.value != "" && !set(param.flag) {
			*param.target = param.value
		}
	}
	if c.Contention > 0 && !set("contention") {
		flags.tree.contention = c.Contention
	}
}

func configFromFlags(flags *flagsT) CLIConfig {
	return CLIConfig{
		Backend:    flags.store.backend,
		Path:       flags.store.path,
		Tree:       flags.tree.name,
		Extent:     flags.tree.extent,
		Contention: flags.tree.contention,
		Cache:      flags.tree.cache,
		LogLevel:   flags.root.logLevel,
	}
}

// configCmd represents the config related commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to manage a config",
	Long: `Commands to manage the porcupine CLI config.

Configuration for porcupine is the common set of flags that are needed for most commands and do not change across runs.
It is read from porcupine.yaml, in the current directory or in $HOME/.porcupine, and from PORCUPINE_* environment variables.`,
}

func init() {
	rootCmd.AddCommand(configCmd)
}
