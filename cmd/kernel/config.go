/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperware-os/kernel/internal/kconfig"
	"github.com/hyperware-os/kernel/version"
)

const defaultConfigLoc = `/etc/hyperware/kernel.conf`

var (
	confLoc = flag.String("config-file", defaultConfigLoc, "Location for configuration file")
	verbose = flag.Bool("v", false, "Display verbose status updates to stdout")
	ver     = flag.Bool("version", false, "Print the version information and exit")
)

// loadConfig reads the INI config file at *confLoc, falling back to
// kconfig.Default() when it is absent, for a just-run-it first boot
// with no config file staged yet.
func loadConfig() (kconfig.KernelConfig, error) {
	if *ver {
		version.PrintVersion(os.Stdout)
		os.Exit(0)
	}

	if _, err := os.Stat(*confLoc); err != nil {
		if os.IsNotExist(err) {
			cfg := kconfig.Default()
			if *verbose {
				cfg.Kernel.Verbose = true
			}
			return cfg, nil
		}
		return kconfig.KernelConfig{}, fmt.Errorf("failed to stat config file %s: %w", *confLoc, err)
	}

	cfg, err := kconfig.LoadFile(*confLoc)
	if err != nil {
		return kconfig.KernelConfig{}, fmt.Errorf("failed to load config file %s: %w", *confLoc, err)
	}
	if *verbose {
		cfg.Kernel.Verbose = true
	}
	return cfg, nil
}

func stateDBPath(cfg kconfig.KernelConfig) string {
	return filepath.Join(cfg.Kernel.Home_Directory, "state.db")
}

func seedPath(cfg kconfig.KernelConfig) string {
	return filepath.Join(cfg.Kernel.Home_Directory, "node.seed")
}
