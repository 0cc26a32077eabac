package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"keytone/emu/log"
)

type mode byte

const (
	runMode     mode = iota // Run the simulator
	sendMode                // Tap keys on a running simulator
	stateMode               // Print the state of a running simulator
	dumpMode                // Print the stored recording
	eraseMode               // Erase the stored recording
	renderMode              // Render the stored recording to WAV
	exportMode              // Export the stored recording to MIDI
	versionMode             // Show keytone version
)

type (
	CLI struct {
		Run     Run     `cmd:"" help:"Run the simulator. (default command)" default:"withargs"`
		Send    Send    `cmd:"" help:"Tap keys on a running simulator."`
		State   State   `cmd:"" help:"Print the state of a running simulator."`
		Dump    Dump    `cmd:"" help:"Print the recording stored in the EEPROM image."`
		Erase   Erase   `cmd:"" help:"Erase the recording stored in the EEPROM image."`
		Render  Render  `cmd:"" help:"Render the stored recording to a WAV file."`
		Export  Export  `cmd:"" help:"Export the stored recording to a MIDI file."`
		Version Version `cmd:"" help:"Show keytone version."`

		Log    logModMask `help:"${log_help}" placeholder:"mod0,mod1,..."`
		Config string     `help:"${config_help}" type:"path" placeholder:"FILE"`
		Image  string     `help:"${image_help}" type:"path" placeholder:"FILE"`

		mode mode
	}

	Run struct {
		Headless   bool     `name:"headless" help:"Run without window nor audio."`
		Port       int      `name:"port" help:"${port_help}"`
		Trace      *outfile `name:"trace" help:"Write I2C bus trace log." placeholder:"FILE|stdout|stderr"`
		SaveConfig bool     `name:"save-config" help:"Save the configuration in use to the config directory."`
	}

	Send struct {
		Keys string        `arg:"" name:"keys" help:"Keys to tap, in order (e.g. B1231CD)."`
		Port int           `name:"port" help:"${port_help}" required:""`
		Hold time.Duration `name:"hold" help:"How long each key is held." default:"100ms"`
	}

	State struct {
		Port int  `name:"port" help:"${port_help}" required:""`
		JSON bool `name:"json" help:"Print as JSON."`
	}

	Dump struct {
		JSON bool `name:"json" help:"Print as JSON."`
	}

	Erase struct{}

	Render struct {
		Out string `arg:"" name:"out.wav" help:"WAV file to write." type:"path"`
	}

	Export struct {
		Out string `arg:"" name:"out.mid" help:"MIDI file to write." type:"path"`
	}

	Version struct{}
)

var vars = kong.Vars{
	"log_help":    "Enable logging for specified modules.",
	"config_help": "Configuration file. (default: config.toml in the user config directory)",
	"image_help":  "EEPROM image file, overrides the configuration.",
	"port_help":   "Port of the RPC control server.",
}

func parseArgs(args []string) CLI {
	var cfg CLI
	parser, err := kong.New(&cfg,
		kong.Name("keytone"),
		kong.Description("Keypad tone player: firmware running on a simulated board."),
		kong.UsageOnError(),
		kong.Help(printHelp),
		vars)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args)
	checkf(err, "failed to parse command line")
	checkf(ctx.Error, "failed to parse command line")

	switch strings.Fields(ctx.Command())[0] {
	case "send":
		cfg.mode = sendMode
	case "state":
		cfg.mode = stateMode
	case "dump":
		cfg.mode = dumpMode
	case "erase":
		cfg.mode = eraseMode
	case "render":
		cfg.mode = renderMode
	case "export":
		cfg.mode = exportMode
	case "version":
		cfg.mode = versionMode
	default:
		cfg.mode = runMode
	}
	return cfg
}

func printHelp(options kong.HelpOptions, ctx *kong.Context) error {
	if err := kong.DefaultHelpPrinter(options, ctx); err != nil {
		return err
	}
	if ctx.Command() == "" || strings.HasPrefix(ctx.Command(), "run") {
		loggingHelp := `
Log modules:
  The --log flag accepts a comma-separated list of modules.

  Valid log modules are:
%s

  As a special case, the following values are accepted:
    - no                     Disable all logging.
    - all                    Enable all logs.
`
		var strs []string
		for _, m := range log.ModuleNames() {
			strs = append(strs, "    - "+m)
		}

		fmt.Fprintf(os.Stderr, loggingHelp, strings.Join(strs, "\n"))
	}

	return nil
}

type logModMask log.ModuleMask

// Decode decodes a comma-separated list of module names into a module mask.
//
// Implements kong.MapperValue interface.
func (lm logModMask) Decode(ctx *kong.DecodeContext) error {
	nolog := false
	allLogs := false

	tok := ctx.Scan.Pop()
	for _, v := range strings.Split(tok.Value.(string), ",") {
		switch v {
		case "all":
			allLogs = true
		case "no":
			nolog = true
		default:
			mod, ok := log.ModuleByName(v)
			if !ok {
				return fmt.Errorf("unknown log module %s", v)
			}
			lm |= logModMask(mod.Mask())
		}
	}

	if nolog {
		if allLogs {
			return fmt.Errorf("cannot use 'all' and 'no' together")
		}
		if lm != 0 {
			return fmt.Errorf("cannot combine 'no' with other log modules")
		}
		log.Disable()
		return nil
	}

	if allLogs {
		lm = logModMask(log.ModuleMaskAll)
	}

	log.EnableDebugModules(log.ModuleMask(lm))
	return nil
}

type outfile struct {
	w     io.Writer
	name  string
	close func() error
}

// Decode decodes FILE|stdout|stderr into an io.WriteCloser
// that writes to that file.
//
// Implements kong.MapperValue interface.
func (f *outfile) Decode(ctx *kong.DecodeContext) error {
	tok := ctx.Scan.Pop()
	f.name = tok.Value.(string)
	f.close = func() error { return nil }

	switch f.name {
	case "stdout":
		f.w = os.Stdout
	case "stderr":
		f.w = os.Stderr
	default:
		fd, err := os.Create(f.name)
		if err != nil {
			return err
		}
		f.w = fd
		f.close = fd.Close
	}
	return nil
}

func (f *outfile) String() string              { return f.name }
func (f *outfile) Write(p []byte) (int, error) { return f.w.Write(p) }
func (f *outfile) Close() error                { return f.close() }

func checkf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	fatalf(format+".\n"+err.Error(), args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal error:")
	fmt.Fprintf(os.Stderr, "\n\t%s\n", fmt.Sprintf(format, args...))
	os.Exit(1)
}
