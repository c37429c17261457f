// Command patchguard validates code patches and simulates the accepted ones
// in a deterministic sandbox.
package main

import "github.com/ppiankov/patchguard/internal/cli"

func main() {
	cli.Execute()
}
