// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/oneconcern/porcupine/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "porcupine",
	Short: "Porcupine stores ordered key-value trees as content-addressed blocks",
	Long: `Porcupine stores ordered key-value trees as content-addressed blocks.

Each tree is persisted as a set of immutable blocks in a block store (a local directory,
a badger or a pebble database), and is known by a named descriptor pointing at its root block.

Every command opens the named tree, applies some operation and, when the tree changed,
seals it and records its new descriptor.
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if porcupineFlags.root.cpuProf {
			f, err := os.Create("cpu.prof")
			if err != nil {
				log.Fatal(err)
			}
			_ = pprof.StartCPUProfile(f)
		}
	},
	// upstream api note:  *PostRun functions aren't called in case of a panic() in Run
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if porcupineFlags.root.cpuProf {
			pprof.StopCPUProfile()
		}
		if porcupineFlags.root.memProf != "" {
			if err := internal.MemProfile(porcupineFlags.root.memProf, "porcupine-"+cmd.Name()); err != nil {
				wrapFatalln("write memory profiles", err)
			}
		}
	},
}

var config *CLIConfig

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addConfigFlag(rootCmd)
	addLogLevel(rootCmd)
	addCPUProfFlag(rootCmd)
	addMemProfFlag(rootCmd)
	addMetricsFlag(rootCmd)
	addBackendFlag(rootCmd)
	addPathFlag(rootCmd)
	addSyncFlag(rootCmd)
	addTreeFlag(rootCmd)
	addExtentFlag(rootCmd)
	addContentionFlag(rootCmd)
	addCacheFlag(rootCmd)
	addInlineLimitFlag(rootCmd)
	addNoVerifyFlag(rootCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	for _, key := range []string{"backend", "path", "tree", "extent", "cache", "loglevel"} {
		viper.SetDefault(key, "")
	}
	viper.SetDefault("contention", 0.0)

	switch {
	case porcupineFlags.root.config != "":
		viper.SetConfigFile(porcupineFlags.root.config)
	case os.Getenv("PORCUPINE_CONFIG") != "":
		viper.SetConfigFile(os.Getenv("PORCUPINE_CONFIG"))
	default:
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.porcupine")
		viper.SetConfigName("porcupine")
	}

	viper.SetEnvPrefix("porcupine")
	viper.AutomaticEnv() // read in environment variables that match
	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}

	var err error
	config, err = newConfig()
	if err != nil {
		logFatalln(err)
		return
	}
	config.setPorcupineParams(&porcupineFlags)
}
