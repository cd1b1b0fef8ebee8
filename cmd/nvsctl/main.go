package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var command = &cobra.Command{
	Use:   "nvsctl",
	Short: "NVS partition inspector",
	Long: `nvsctl reads and edits typed values stored in NVS partition files.
Every write goes through the deduplicating write path: an unchanged value
is never written to the partition.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// use stdout as default output for cmd.Print()
	command.SetOut(os.Stdout)

	addGlobalFlags(command.PersistentFlags())
	command.AddCommand(
		statusCMD,
		getCMD,
		setCMD,
		sizeCMD,
		eraseCMD,
	)
}

func addGlobalFlags(pf *pflag.FlagSet) {
	pf.StringP(flagConfig, "c", "", "Path to the configuration file")
	pf.String(flagDir, "", "Directory with partition files (overrides partition.dir)")
	pf.StringP(flagPartition, "p", "", "Partition label (default partition if empty)")
	pf.Bool(flagDebug, false, "Log at debug level")
	pf.Bool(flagReport, false, "Print wear counters after the command")
}

func main() {
	if err := command.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
