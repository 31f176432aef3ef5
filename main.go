package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tphakala/livelabel/cmd"
	"github.com/tphakala/livelabel/internal/conf"
)

func main() {
	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "livelabel: %v\n", err)
		os.Exit(1)
	}
}
