package main

import (
	"context"
	"fmt"
	"os"

	"github.com/indragiek/uniprof/internal/cli"
	uerrors "github.com/indragiek/uniprof/internal/errors"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(uerrors.ExitCode(err))
	}
}
