package main

import (
	"fmt"
	"log"

	"github.com/navikt/meetcore/internal/cli"
	"github.com/navikt/meetcore/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	return cli.NewRootCmd(&cli.Dependencies{Config: cfg}).Execute()
}
