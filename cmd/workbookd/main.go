package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/workbook/internal/config"
	"github.com/matheus3301/workbook/internal/daemon"
	"github.com/matheus3301/workbook/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	printConfig := flag.Bool("print-config", false, "print the resolved configuration and exit")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	params := daemon.Params{Profile: name, Config: cfg}
	if *printConfig {
		fmt.Print(daemon.Describe(params, cfg))
		return
	}

	app := fx.New(
		daemon.Module(params),
	)
	app.Run()
}
