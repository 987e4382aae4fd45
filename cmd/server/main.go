package main

import (
	"log"

	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (environment variables override it)")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
