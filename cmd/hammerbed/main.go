// Command hammerbed induces DRAM row-hammer bit flips and catalogs them.
package main

import "github.com/sarchlab/hammerbed/cmd/hammerbed/cmd"

func main() {
	cmd.Execute()
}
