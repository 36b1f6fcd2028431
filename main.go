package main

import (
	"context"
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		var shown reportedError
		if errors.As(err, &shown) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}
