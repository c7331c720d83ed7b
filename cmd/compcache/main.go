// Compcache inspects and maintains the computation cache of a Python project.
//
// Usage:
//
//	compcache key --action check --python 3.11   # print the fingerprint of a unit of work
//	compcache check <fingerprint>                # print the cached entry, exit 1 on a miss
//	compcache update <fingerprint> --status 0 --item 0:ok
//	compcache stats                              # entry count and size of the store
//	compcache clear                              # remove the store
package main

import (
	"os"

	"github.com/gophersatwork/compcache/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
