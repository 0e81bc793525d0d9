package main

import (
	"fmt"
	"os"

	"github.com/cloudhand/cloudhand/internal/cmd"
	"github.com/cloudhand/cloudhand/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(errors.ExitCode(err, 1))
	}
}
