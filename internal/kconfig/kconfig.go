/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package kconfig loads the kernel's boot configuration from an INI-style
// file, with environment variable overrides for the node name, home
// directory, HTTP port and debug stepthrough flag.
package kconfig

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strconv"

	"github.com/gravwell/gcfg"
)

const (
	maxConfigSize int64 = 4 * 1024 * 1024

	envPrefix      = `KERNEL_`
	envNodeName    = envPrefix + `NODE_NAME`
	envHTTPPort    = envPrefix + `HTTP_PORT`
	envHomeDir     = envPrefix + `HOME`
	envDebug       = envPrefix + `DEBUG`
)

var (
	ErrConfigFileTooLarge = errors.New("config file is too large")
	ErrFailedFileRead     = errors.New("failed to read entire config file")
)

// Global is the top level [kernel] section of the boot config file.
type Global struct {
	Node_Name        string
	Home_Directory   string
	HTTP_Port        uint16
	WS_Max_Sessions  int
	Debug_Stepthrough bool
	Verbose          bool
	Log_Level        string
	// Login_Password is the plaintext login-verb password.
	// Left empty, the outer binary generates and logs a fresh one at every
	// boot rather than shipping a fixed default credential.
	Login_Password string
}

// KernelConfig is the full on-disk configuration structure, matching the
// gcfg INI sectioning convention.
type KernelConfig struct {
	Kernel Global
}

// Default returns the configuration used when no file is supplied, handy
// for tests and for single-binary "just run it" bootstraps.
func Default() KernelConfig {
	return KernelConfig{
		Kernel: Global{
			Node_Name:       "our-node",
			Home_Directory:  ".",
			HTTP_Port:       8080,
			WS_Max_Sessions: 128,
			Log_Level:       "INFO",
		},
	}
}

// LoadFile reads and parses an INI config file at p, then overlays
// environment variables on top of it.
func LoadFile(p string) (cfg KernelConfig, err error) {
	cfg = Default()
	var fin *os.File
	if fin, err = os.Open(p); err != nil {
		return
	}
	defer fin.Close()

	var fi os.FileInfo
	if fi, err = fin.Stat(); err != nil {
		return
	} else if fi.Size() > maxConfigSize {
		err = ErrConfigFileTooLarge
		return
	}

	bb := bytes.NewBuffer(nil)
	var n int64
	if n, err = io.Copy(bb, fin); err != nil {
		return
	} else if n != fi.Size() {
		err = ErrFailedFileRead
		return
	}

	if err = gcfg.ReadStringInto(&cfg, bb.String()); err != nil {
		return
	}
	applyEnvOverlay(&cfg)
	return
}

// applyEnvOverlay lets operators override the node name, HTTP port, home
// directory and debug flag without touching the config file: env wins
// over file, file wins over Default().
func applyEnvOverlay(cfg *KernelConfig) {
	if v, ok := os.LookupEnv(envNodeName); ok && v != `` {
		cfg.Kernel.Node_Name = v
	}
	if v, ok := os.LookupEnv(envHomeDir); ok && v != `` {
		cfg.Kernel.Home_Directory = v
	}
	if v, ok := os.LookupEnv(envHTTPPort); ok && v != `` {
		if port, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.Kernel.HTTP_Port = uint16(port)
		}
	}
	if v, ok := os.LookupEnv(envDebug); ok {
		cfg.Kernel.Debug_Stepthrough = v == "1" || v == "true"
	}
}
