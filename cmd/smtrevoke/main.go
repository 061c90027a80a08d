// Command smtrevoke drives the certificate-revocation simulator and
// its large-tree evaluation campaigns from the command line.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	// glog registers its flags (-v, -logtostderr, ...) on the stdlib
	// flag.CommandLine; fold them into cobra's pflag-based flag set so
	// they show up in --help alongside the command's own flags, then
	// parse everything through cobra.Execute instead of flag.Parse.
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	defer glog.Flush()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smtrevoke",
		Short: "Sparse-Merkle-Tree certificate revocation simulator and evaluator",
	}
	cmd.AddCommand(newSimulateCmd())
	cmd.AddCommand(newEvalCmd())
	return cmd
}
