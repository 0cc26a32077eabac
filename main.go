package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"keytone/emu"
)

func main() {
	cli := parseArgs(os.Args[1:])

	cfg := loadConfig(cli)

	switch cli.mode {
	case runMode:
		runMain(cli.Run, cfg)
	case sendMode:
		sendMain(cli.Send)
	case stateMode:
		stateMain(cli.State)
	case dumpMode:
		dumpMain(cli.Dump, cfg)
	case eraseMode:
		checkf(emu.EraseImage(cfg.Hardware), "failed to erase %s", cfg.Hardware.ImagePath())
	case renderMode:
		renderMain(cli.Render, cfg)
	case exportMode:
		exportMain(cli.Export, cfg)
	case versionMode:
		printVersion()
	}
}

func loadConfig(cli CLI) emu.Config {
	var cfg emu.Config
	if cli.Config != "" {
		var err error
		cfg, err = emu.LoadConfig(cli.Config)
		checkf(err, "failed to load configuration")
	} else {
		cfg = emu.LoadConfigOrDefault()
	}
	if cli.Image != "" {
		cfg.Hardware.Image = cli.Image
	}
	return cfg
}

func printVersion() {
	version := "(devel)"
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		version = bi.Main.Version
	}
	fmt.Println("keytone", version)
}
