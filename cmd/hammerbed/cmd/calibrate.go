package cmd

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/hammerbed/calibrate"
	"github.com/sarchlab/hammerbed/hammer"
	"github.com/sarchlab/hammerbed/mem/buffer"
	"github.com/sarchlab/hammerbed/mem/pagemap"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Measure the duration of the hammering instructions.",
	Long: "`calibrate` hammers one random address of a small buffer with " +
		"every operation, cache maintenance and barrier combination, and " +
		"prints the average duration of one access.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()

		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		m, err := openBuffer(
			mustGetUint64(flags, "size")*mib,
			buffer.Standard,
			mustGetBool(flags, "simulate"))
		if err != nil {
			return err
		}
		defer m.Close()

		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		va := m.buf.Base() + uintptr(rng.Int63n(int64(m.buf.Size())))&^7

		target, err := pagemap.Resolve(m.table, va)
		if err != nil {
			return err
		}

		c := calibrate.MakeBuilder().
			WithHammerer(hammer.MakeBuilder().Build()).
			WithIterations(mustGetUint64(flags, "iterations")).
			Build()

		results, err := c.Measure(target)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Instruction timing at %s:\n", target)

		return calibrate.WriteTable(os.Stdout, results)
	},
}

func init() {
	f := calibrateCmd.Flags()
	f.Uint64("iterations", calibrate.DefaultIterations,
		"accesses per configuration")
	f.Uint64("size", 2, "buffer size in MiB")
	f.Bool("simulate", false,
		"use synthetic physical addresses instead of /proc/self/pagemap")

	rootCmd.AddCommand(calibrateCmd)
}
