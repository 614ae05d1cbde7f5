// tmd-durations prints the hours of data collected per travel mode.
//
// Usage: tmd-durations [flags] <data_dir>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/tmdtools/internal/datadir"
	"github.com/chrissnell/tmdtools/internal/log"
)

func main() {
	perUser := flag.Bool("users", false, "Also list the trips of every user")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <data_dir>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dir, err := datadir.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to open data directory: %v", err)
	}

	if *perUser {
		fmt.Println(dir)
	}
	if err := dir.FormatDurations(os.Stdout); err != nil {
		log.Fatalf("Failed to compute durations: %v", err)
	}
}
