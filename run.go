package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/veandco/go-sdl2/sdl"

	"keytone/emu"
	"keytone/emu/rpc"
	"keytone/fw"
)

// runMain runs the simulator until the window is closed, it's interrupted or
// stopped over RPC.
func runMain(args Run, cfg emu.Config) {
	if args.SaveConfig {
		checkf(emu.SaveConfig(cfg), "failed to save configuration")
	}

	var exitcode int
	run := func() {
		if args.Trace != nil {
			cfg.TraceOut = args.Trace
			defer args.Trace.Close()
		}

		sim, err := emu.Launch(cfg, args.Headless)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start simulator: %v\n", err)
			exitcode = 1
			return
		}

		if args.Port != 0 {
			server, err := rpc.NewServer(args.Port, sim)
			if err != nil {
				fmt.Fprintf(os.Stderr, "RPC error: %v\n", err)
				exitcode = 1
				return
			}
			defer server.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := sim.Run(ctx); err != nil {
			if errors.Is(err, fw.ErrHalted) {
				fmt.Fprintf(os.Stderr, "firmware halted: %v\n", err)
			} else {
				fmt.Fprintf(os.Stderr, "simulator error: %v\n", err)
			}
			exitcode = 1
		}
	}

	if args.Headless {
		run()
	} else {
		sdl.Main(run)
	}
	os.Exit(exitcode)
}

func sendMain(args Send) {
	client, err := rpc.NewClient(args.Port)
	checkf(err, "failed to connect to simulator")
	defer client.Close()

	for i := range len(args.Keys) {
		key := args.Keys[i]
		checkf(client.Tap(key, args.Hold), "failed to tap %q", key)
	}
}

func stateMain(args State) {
	client, err := rpc.NewClient(args.Port)
	checkf(err, "failed to connect to simulator")
	defer client.Close()

	st, err := client.State()
	checkf(err, "failed to get simulator state")
	if args.JSON {
		checkf(emu.WriteJSON(os.Stdout, st), "failed to write state")
		return
	}
	fmt.Print(st)
}

func dumpMain(args Dump, cfg emu.Config) {
	rec, err := emu.ReadRecording(cfg.Hardware)
	checkf(err, "failed to read recording")
	if args.JSON {
		checkf(emu.WriteJSON(os.Stdout, rec), "failed to write recording")
		return
	}
	checkf(rec.Dump(os.Stdout), "failed to write recording")
}

func renderMain(args Render, cfg emu.Config) {
	rec, err := emu.ReadRecording(cfg.Hardware)
	checkf(err, "failed to read recording")

	f, err := os.Create(args.Out)
	checkf(err, "failed to create %s", args.Out)
	err = emu.RenderWAV(f, rec.Notes, cfg.Firmware.Timing(), cfg.Hardware.RefClock, cfg.Audio)
	checkf(err, "failed to render recording")
	checkf(f.Close(), "failed to write %s", args.Out)
	fmt.Printf("%d notes written to %s\n", len(rec.Notes), args.Out)
}

func exportMain(args Export, cfg emu.Config) {
	rec, err := emu.ReadRecording(cfg.Hardware)
	checkf(err, "failed to read recording")

	f, err := os.Create(args.Out)
	checkf(err, "failed to create %s", args.Out)
	checkf(emu.ExportMIDI(f, rec.Notes, cfg.Firmware.Timing()), "failed to export recording")
	checkf(f.Close(), "failed to write %s", args.Out)
	fmt.Printf("%d notes written to %s\n", len(rec.Notes), args.Out)
}
