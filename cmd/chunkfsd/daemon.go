package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/uplo-tech/chunkfs/build"
	"github.com/uplo-tech/chunkfs/modules"
	"github.com/uplo-tech/chunkfs/modules/coordinator"
	"github.com/uplo-tech/chunkfs/modules/storagenode"
	"github.com/uplo-tech/chunkfs/node/api"
	"github.com/uplo-tech/chunkfs/node/api/server"
)

// installKillSignalHandler returns a channel that receives the process's
// interrupt and termination signals.
func installKillSignalHandler() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

// serveUntilSignal runs the API server until a kill signal arrives, then
// shuts down the server and the provided module.
func serveUntilSignal(srv *server.Server, closeModule func() error, role string) {
	sigChan := installKillSignalHandler()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve()
	}()
	fmt.Printf("%v listening on %v\n", role, srv.APIAddress())

	select {
	case sig := <-sigChan:
		fmt.Printf("\nCaught signal %v, shutting down...\n", sig)
	case err := <-serveErr:
		if err != nil {
			die("Server error:", err)
		}
		return
	}

	if err := srv.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "Error closing server:", err)
	}
	if err := closeModule(); err != nil {
		fmt.Fprintln(os.Stderr, "Error closing", role+":", err)
	}
}

// startCoordinatorCmd starts the coordinator role.
func startCoordinatorCmd(*cobra.Command, []string) {
	cfg := globalConfig.Coordinator
	versionCmd(nil, nil)

	c, err := coordinator.NewCustom(cfg.DataDir, cfg.ReplicaFactor,
		time.Duration(cfg.HeartbeatTimeout)*time.Second,
		time.Duration(cfg.MonitorInterval)*time.Second)
	if err != nil {
		die("Unable to create coordinator:", err)
	}

	srv, err := server.New(cfg.APIAddr, api.New(c, nil))
	if err != nil {
		die("Unable to create API server:", err)
	}
	serveUntilSignal(srv, c.Close, "Coordinator")
}

// startStorageNodeCmd starts the storage node role.
func startStorageNodeCmd(*cobra.Command, []string) {
	cfg := globalConfig.StorageNode
	if cfg.DNID == "" || cfg.APIAddr == "" {
		fmt.Fprintln(os.Stderr, "The --id and --api-addr flags are required.")
		os.Exit(exitCodeUsage)
	}
	versionCmd(nil, nil)

	host := cfg.Host
	if host == "" {
		host = "http://" + cfg.APIAddr
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(build.ChunkfsDir(), modules.StorageNodeDir+"_"+cfg.DNID)
	}

	sn, err := storagenode.NewCustom(cfg.DNID, host, cfg.CoordinatorAddr, dataDir,
		time.Duration(cfg.HeartbeatInterval)*time.Second,
		time.Duration(cfg.RecoveryInterval)*time.Second,
		cfg.HeartbeatRetries)
	if err != nil {
		die("Unable to create storage node:", err)
	}

	srv, err := server.New(cfg.APIAddr, api.New(nil, sn))
	if err != nil {
		die("Unable to create API server:", err)
	}
	serveUntilSignal(srv, sn.Close, "DataNode "+cfg.DNID)
}
