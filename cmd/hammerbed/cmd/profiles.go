package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/hammerbed/dram/geometry"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles [name]",
	Short: "List the built-in geometry profiles.",
	Long: "`profiles` lists the built-in geometry profiles. With a name, it " +
		"prints that profile as YAML, which can be edited and passed back " +
		"with --profile-file.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if len(args) == 0 {
			return listProfiles(os.Stdout)
		}

		return printProfile(os.Stdout, args[0])
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func listProfiles(w io.Writer) error {
	for _, name := range geometry.ProfileNames() {
		p, err := geometry.LookupProfile(name)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%-12s %s\n", name, p.Description)
	}

	return nil
}

func printProfile(w io.Writer, name string) error {
	p, err := geometry.LookupProfile(name)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err = enc.Encode(p)
	if err != nil {
		return err
	}

	return enc.Close()
}
