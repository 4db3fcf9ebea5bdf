package cmd

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/hammerbed/bitflip"
	"github.com/sarchlab/hammerbed/bitflip/fill"
	"github.com/sarchlab/hammerbed/mem/buffer"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Check address translation and buffer initialization.",
	Long: "`selftest` allocates a buffer, fills it, checks that it holds " +
		"the pattern, and checks that random addresses translate to " +
		"physical addresses and back.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()

		m, err := openBuffer(
			mustGetUint64(flags, "size")*mib,
			buffer.ParseBacking(mustGetString(flags, "buffer-type")),
			mustGetBool(flags, "simulate"))
		if err != nil {
			return err
		}
		defer m.Close()

		fmt.Fprintf(os.Stdout, "Translation table: %d pages\n", m.table.Len())

		p := fill.Parse(mustGetString(flags, "pattern"), uint64(time.Now().Unix()))
		m.buf.Fill(p)

		d := bitflip.MakeBuilder().WithTranslator(m.table).Build()
		err = d.CheckInitialized(m.buf, p)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Buffer holds %s\n", fill.Detail(p))

		n := mustGetInt(flags, "samples")
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))

		err = m.table.Verify(m.tr, rng, n)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%d addresses round-tripped VA -> PA -> VA\n", n)

		return nil
	},
}

func init() {
	f := selftestCmd.Flags()
	f.Uint64("size", 32, "buffer size in MiB")
	f.StringP("buffer-type", "B", buffer.Standard.String(), "normal | 2M | 1G")
	f.StringP("pattern", "P", fill.DefaultName, "fill pattern")
	f.Int("samples", 100, "addresses checked")
	f.Bool("simulate", false,
		"use synthetic physical addresses instead of /proc/self/pagemap")

	rootCmd.AddCommand(selftestCmd)
}
