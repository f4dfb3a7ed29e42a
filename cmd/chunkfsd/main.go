package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/uplo-tech/chunkfs/build"
	"github.com/uplo-tech/chunkfs/modules"
)

var (
	// globalConfig is used by the cobra package to fill out the configuration
	// variables.
	globalConfig Config
)

// exit codes
// inspired by sysexits.h
const (
	exitCodeGeneral = 1  // Not in sysexits.h, but is standard practice.
	exitCodeUsage   = 64 // EX_USAGE in sysexits.h
)

// The Config struct contains all configurable variables for chunkfsd. It is
// filled out by the flags of the role subcommands.
type Config struct {
	// Coordinator variables.
	Coordinator struct {
		APIAddr          string
		DataDir          string
		ReplicaFactor    int
		HeartbeatTimeout int
		MonitorInterval  int
	}

	// StorageNode variables.
	StorageNode struct {
		DNID              string
		APIAddr           string
		Host              string
		CoordinatorAddr   string
		DataDir           string
		HeartbeatInterval int
		RecoveryInterval  int
		HeartbeatRetries  int
	}
}

// die prints its arguments to stderr, then exits the program with the default
// error code.
func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

// versionCmd is a cobra command that prints the version of chunkfsd.
func versionCmd(*cobra.Command, []string) {
	version := build.Version
	if build.ReleaseTag != "" {
		version += "-" + build.ReleaseTag
	}
	switch build.Release {
	case "dev":
		fmt.Println("Chunkfs Daemon v" + version + "-dev")
	case "standard":
		fmt.Println("Chunkfs Daemon v" + version)
	case "testing":
		fmt.Println("Chunkfs Daemon v" + version + "-testing")
	default:
		fmt.Println("Chunkfs Daemon v" + version + "-???")
	}
}

func main() {
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "Chunkfs Daemon v" + build.Version,
		Long:  "Chunkfs Daemon v" + build.Version,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.UsageFunc()(cmd)
			os.Exit(exitCodeUsage)
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information about the Chunkfs Daemon",
		Run:   versionCmd,
	})

	coordinatorCmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Run the coordinator",
		Long:  "Run the naming service that tracks files, chunk placements and datanode liveness.",
		Run:   startCoordinatorCmd,
	}
	coordinatorCmd.Flags().StringVar(&globalConfig.Coordinator.APIAddr, "api-addr", ":5000", "which host:port the coordinator API listens on")
	coordinatorCmd.Flags().StringVar(&globalConfig.Coordinator.DataDir, "data-dir", filepath.Join(build.ChunkfsDir(), modules.CoordinatorDir), "location of the coordinator's metadata and logs")
	coordinatorCmd.Flags().IntVar(&globalConfig.Coordinator.ReplicaFactor, "replica-factor", modules.DefaultReplicaFactor, "number of live replicas to maintain per chunk")
	coordinatorCmd.Flags().IntVar(&globalConfig.Coordinator.HeartbeatTimeout, "heartbeat-timeout", int(modules.DefaultHeartbeatTimeout.Seconds()), "seconds of heartbeat silence before a datanode is marked dead")
	coordinatorCmd.Flags().IntVar(&globalConfig.Coordinator.MonitorInterval, "monitor-interval", int(modules.DefaultMonitorInterval.Seconds()), "seconds between liveness monitor passes")
	root.AddCommand(coordinatorCmd)

	storagenodeCmd := &cobra.Command{
		Use:   "storagenode",
		Short: "Run a storage node",
		Long:  "Run a datanode that stores chunks for the cluster.",
		Run:   startStorageNodeCmd,
	}
	storagenodeCmd.Flags().StringVar(&globalConfig.StorageNode.DNID, "id", "", "datanode id, e.g. dn1 (required)")
	storagenodeCmd.Flags().StringVar(&globalConfig.StorageNode.APIAddr, "api-addr", "", "which host:port the datanode API listens on (required)")
	storagenodeCmd.Flags().StringVar(&globalConfig.StorageNode.Host, "host", "", "base URL other processes use to reach this datanode; derived from api-addr if empty")
	storagenodeCmd.Flags().StringVar(&globalConfig.StorageNode.CoordinatorAddr, "coordinator", "http://localhost:5000", "base URL of the coordinator")
	storagenodeCmd.Flags().StringVar(&globalConfig.StorageNode.DataDir, "data-dir", "", "location of the datanode's chunks; derived from the id if empty")
	storagenodeCmd.Flags().IntVar(&globalConfig.StorageNode.HeartbeatInterval, "heartbeat-interval", int(modules.DefaultHeartbeatInterval.Seconds()), "seconds between heartbeats")
	storagenodeCmd.Flags().IntVar(&globalConfig.StorageNode.RecoveryInterval, "recovery-interval", int(modules.DefaultRecoveryInterval.Seconds()), "seconds between recovery passes")
	storagenodeCmd.Flags().IntVar(&globalConfig.StorageNode.HeartbeatRetries, "heartbeat-retries", modules.DefaultHeartbeatRetries, "attempts per heartbeat tick")
	root.AddCommand(storagenodeCmd)

	// Parse cmdline flags, overwriting the default values. If this process
	// errors, cobra will print the usage.
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeUsage)
	}
}
