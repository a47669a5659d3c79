// Command directory serves a TOML contact directory to rosterd as a dynamic
// roster plugin. The directory file is named by ROSTERD_DIRECTORY.
package main

import (
	"fmt"
	"os"

	"github.com/meszmate/rosterd/internal/dynamic"
	"github.com/meszmate/rosterd/pkg/plugin"
)

func main() {
	path := os.Getenv("ROSTERD_DIRECTORY")
	if path == "" {
		fmt.Fprintln(os.Stderr, "ROSTERD_DIRECTORY is not set")
		os.Exit(1)
	}

	dir, err := dynamic.LoadDirectory(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load directory: %v\n", err)
		os.Exit(1)
	}

	plugin.Serve(newDirectoryRoster(dir))
}
