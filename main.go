// SPDX-License-Identifier: MPL-2.0

// forgeup provisions CI workers for conda-based package builds.
package main

import cmd "forgeup-cli/cmd/forgeup"

func main() {
	cmd.Execute()
}
