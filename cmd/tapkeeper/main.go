package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/blackwell-systems/tapkeeper/internal/app"
)

func main() {
	if err := app.Execute(); err != nil {
		var exitErr *app.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Msg != "" {
				fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
