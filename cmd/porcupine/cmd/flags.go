// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/cobra"
)

const (
	backendLocalFS = "localfs"
	backendBadger  = "badger"
	backendPebble  = "pebble"
)

type flagsT struct {
	root struct {
		config   string
		logLevel string
		cpuProf  bool
		memProf  string
		metrics  bool
	}
	store struct {
		backend string
		path    string
		sync    bool
	}
	tree struct {
		name        string
		extent      string
		contention  float64
		cache       string
		inlineLimit string
		noVerify    bool
	}
	write struct {
		collect bool
	}
	list struct {
		from  string
		limit int
	}
	config struct {
		target string
	}
}

var porcupineFlags = flagsT{}

func addConfigFlag(cmd *cobra.Command) string {
	c := "config"
	cmd.PersistentFlags().StringVar(&porcupineFlags.root.config, c, "", "The config file to use, instead of porcupine.yaml in the current dir or in $HOME/.porcupine")
	return c
}

func addLogLevel(cmd *cobra.Command) string {
	loglevel := "loglevel"
	cmd.PersistentFlags().StringVar(&porcupineFlags.root.logLevel, loglevel, "info", "The logging level. Levels by increasing order of verbosity: none, error, warn, info, debug")
	return loglevel
}

func addCPUProfFlag(cmd *cobra.Command) string {
	c := "cpuprof"
	cmd.PersistentFlags().BoolVar(&porcupineFlags.root.cpuProf, c, false, "Toggle runtime profiling")
	return c
}

func addMemProfFlag(cmd *cobra.Command) string {
	c := "memprof"
	cmd.PersistentFlags().StringVar(&porcupineFlags.root.memProf, c, "", "Write heap and allocation profiles to this directory when the command completes")
	return c
}

func addMetricsFlag(cmd *cobra.Command) string {
	m := "metrics"
	cmd.PersistentFlags().BoolVar(&porcupineFlags.root.metrics, m, false, "Toggle metrics collection, logged when the command completes")
	return m
}

func addBackendFlag(cmd *cobra.Command) string {
	backend := "backend"
	cmd.PersistentFlags().StringVar(&porcupineFlags.store.backend, backend, backendLocalFS, "The block store: localfs, badger or pebble")
	return backend
}

func addPathFlag(cmd *cobra.Command) string {
	p := "path"
	cmd.PersistentFlags().StringVar(&porcupineFlags.store.path, p, ".porcupine", "The directory of the block store")
	return p
}

func addSyncFlag(cmd *cobra.Command) string {
	s := "sync"
	cmd.PersistentFlags().BoolVar(&porcupineFlags.store.sync, s, false, "Wait for every block to reach stable storage")
	return s
}

func addTreeFlag(cmd *cobra.Command) string {
	tree := "tree"
	cmd.PersistentFlags().StringVar(&porcupineFlags.tree.name, tree, "default", "The name of the tree")
	return tree
}

func addExtentFlag(cmd *cobra.Command) string {
	extent := "extent"
	cmd.PersistentFlags().StringVar(&porcupineFlags.tree.extent, extent, "8KiB", "The target maximum size of a node, for new trees")
	return extent
}

func addContentionFlag(cmd *cobra.Command) string {
	contention := "contention"
	cmd.PersistentFlags().Float64Var(&porcupineFlags.tree.contention, contention, 0.5, "The fraction of the extent below which nodes merge, for new trees")
	return contention
}

func addCacheFlag(cmd *cobra.Command) string {
	cache := "cache"
	cmd.PersistentFlags().StringVar(&porcupineFlags.tree.cache, cache, "4MiB", "The size of nodes kept in memory")
	return cache
}

func addInlineLimitFlag(cmd *cobra.Command) string {
	limit := "inline-limit"
	cmd.PersistentFlags().StringVar(&porcupineFlags.tree.inlineLimit, limit, "", "The largest value stored within leaves. Defaults to 1/8 of the default extent")
	return limit
}

func addNoVerifyFlag(cmd *cobra.Command) string {
	noVerify := "no-verify"
	cmd.PersistentFlags().BoolVar(&porcupineFlags.tree.noVerify, noVerify, false, "Skip the verification of loaded blocks against their address")
	return noVerify
}

func addCollectFlag(cmd *cobra.Command) string {
	collect := "collect"
	cmd.Flags().BoolVar(&porcupineFlags.write.collect, collect, false,
		"Delete the blocks which the new version of the tree no longer refers to. Only safe with a single tree per store")
	return collect
}

func addFromFlag(cmd *cobra.Command) string {
	from := "from"
	cmd.Flags().StringVar(&porcupineFlags.list.from, from, "", "List keys from this one, included")
	return from
}

func addLimitFlag(cmd *cobra.Command) string {
	limit := "limit"
	cmd.Flags().IntVar(&porcupineFlags.list.limit, limit, 0, "The maximum number of entries to list, 0 for all")
	return limit
}

func addTargetFlag(cmd *cobra.Command) string {
	target := "target"
	cmd.Flags().StringVar(&porcupineFlags.config.target, target, "porcupine.yaml", "The config file to create")
	return target
}
