// Command gfio reads, appends to and resizes files with the gfio library.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gfio:", err)
		os.Exit(1)
	}
}
