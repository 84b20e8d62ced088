package main

import (
	"os"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

func main() {
	a := newApp(log.NewLogger(), os.Stdout, os.Stdin, env.NewRepository())
	if err := newRootCmd(a).Execute(); err != nil {
		a.logger.Errorf("%s", err)
		os.Exit(1)
	}
}
