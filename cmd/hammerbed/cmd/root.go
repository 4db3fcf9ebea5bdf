// Package cmd provides the command-line interface of hammerbed.
package cmd

import (
	"flag"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"k8s.io/klog/v2"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use: "hammerbed",
	Short: "hammerbed activates DRAM rows at high frequency and catalogs the " +
		"bit flips it causes in neighboring rows.",
	Long: `hammerbed activates DRAM rows at high frequency and catalogs the ` +
		`bit flips it causes in neighboring rows. Every flag can also be set ` +
		`with a HAMMERBED_<FLAG> environment variable or in a .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return applyEnvDefaults(cmd)
	},
}

func init() {
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	atexit.Register(klog.Flush)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It does not return: the exit handlers run before the process
// exits.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		klog.Errorf("%v", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
