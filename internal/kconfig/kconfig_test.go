/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package kconfig

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
[Kernel]
Node-Name = "bob.os"
Home-Directory = "/var/lib/hyperware"
HTTP-Port = 9090
WS-Max-Sessions = 64
Log-Level = "DEBUG"
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kernel.conf")
	if err := os.WriteFile(path, []byte(body), 0640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Kernel.Node_Name != "our-node" {
		t.Fatalf("expected default node name, got %q", cfg.Kernel.Node_Name)
	}
	if cfg.Kernel.HTTP_Port != 8080 {
		t.Fatalf("expected default HTTP port 8080, got %d", cfg.Kernel.HTTP_Port)
	}
}

func TestLoadFileParsesIniSection(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Kernel.Node_Name != "bob.os" {
		t.Fatalf("expected node name bob.os, got %q", cfg.Kernel.Node_Name)
	}
	if cfg.Kernel.HTTP_Port != 9090 {
		t.Fatalf("expected HTTP port 9090, got %d", cfg.Kernel.HTTP_Port)
	}
	if cfg.Kernel.Log_Level != "DEBUG" {
		t.Fatalf("expected log level DEBUG, got %q", cfg.Kernel.Log_Level)
	}
}

func TestLoadFileMissingFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.conf")); err == nil {
		t.Fatal("expected an error loading a missing config file")
	}
}

func TestLoadFileRejectsOversizeFile(t *testing.T) {
	big := make([]byte, maxConfigSize+1)
	path := writeTempConfig(t, string(big))
	if _, err := LoadFile(path); err != ErrConfigFileTooLarge {
		t.Fatalf("expected ErrConfigFileTooLarge, got %v", err)
	}
}

func TestEnvOverlayOverridesNodeNameAndHomeDir(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	t.Setenv(envNodeName, "carol.os")
	t.Setenv(envHomeDir, "/opt/hyperware")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Kernel.Node_Name != "carol.os" {
		t.Fatalf("expected env override of node name, got %q", cfg.Kernel.Node_Name)
	}
	if cfg.Kernel.Home_Directory != "/opt/hyperware" {
		t.Fatalf("expected env override of home directory, got %q", cfg.Kernel.Home_Directory)
	}
}

func TestEnvOverlayOverridesHTTPPort(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	t.Setenv(envHTTPPort, "1234")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Kernel.HTTP_Port != 1234 {
		t.Fatalf("expected env override of HTTP port to 1234, got %d", cfg.Kernel.HTTP_Port)
	}
}

func TestEnvOverlayIgnoresUnparsableHTTPPort(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	t.Setenv(envHTTPPort, "not-a-port")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Kernel.HTTP_Port != 9090 {
		t.Fatalf("expected file value preserved on unparsable env override, got %d", cfg.Kernel.HTTP_Port)
	}
}

func TestEnvOverlayDebugFlag(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	t.Setenv(envDebug, "true")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !cfg.Kernel.Debug_Stepthrough {
		t.Fatal("expected env override to enable debug stepthrough")
	}
}
