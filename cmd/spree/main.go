package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/psantana5/spree/cmd/spree/cmd"
	"github.com/psantana5/spree/pkg/loader"
)

func main() {
	rt := loader.Init()

	if err := cmd.Execute(rt); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
