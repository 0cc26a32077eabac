package emu

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-faster/errors"

	"keytone/emu/log"
	"keytone/fw"
	"keytone/fw/keypad"
	"keytone/fw/storage"
	"keytone/fw/tone"
	"keytone/hw/eeprom"
)

type Config struct {
	Firmware FirmwareConfig `toml:"firmware"`
	Hardware HardwareConfig `toml:"hardware"`
	Audio    AudioConfig    `toml:"audio"`
	Input    InputConfig    `toml:"input"`

	TraceOut io.WriteCloser `toml:"-"`
}

// Duration is a time.Duration written as a string in TOML ("10ms").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type FirmwareConfig struct {
	Debounce Duration `toml:"debounce"`
	Settle   Duration `toml:"settle"`
	Scan     Duration `toml:"scan_interval"`
	Poll     Duration `toml:"release_poll"`
	Note     Duration `toml:"note"`
	Gap      Duration `toml:"gap"`
}

func (fcfg *FirmwareConfig) Check() {
	def := defaultConfig.Firmware
	check := func(name string, d *Duration, dflt Duration, allowZero bool) {
		if *d > 0 || (allowZero && *d == 0) {
			return
		}
		log.ModEmu.Warnf("Invalid %s duration %v, fallback to %v", name, time.Duration(*d), time.Duration(dflt))
		*d = dflt
	}
	check("debounce", &fcfg.Debounce, def.Debounce, true)
	check("settle", &fcfg.Settle, def.Settle, true)
	check("scan_interval", &fcfg.Scan, def.Scan, false)
	check("release_poll", &fcfg.Poll, def.Poll, false)
	check("note", &fcfg.Note, def.Note, false)
	check("gap", &fcfg.Gap, def.Gap, true)
}

// Timing returns the firmware timing described by fcfg.
func (fcfg FirmwareConfig) Timing() fw.Timing {
	return fw.Timing{
		Debounce: time.Duration(fcfg.Debounce),
		Settle:   time.Duration(fcfg.Settle),
		Scan:     time.Duration(fcfg.Scan),
		Poll:     time.Duration(fcfg.Poll),
		Note:     time.Duration(fcfg.Note),
		Gap:      time.Duration(fcfg.Gap),
	}
}

type HardwareConfig struct {
	RefClock  uint32 `toml:"ref_clock"`      // Hz, system and PWM clock
	Image     string `toml:"eeprom_image"`   // empty: eeprom.bin in the config directory
	Size      int    `toml:"eeprom_size"`    // bytes
	Address   uint8  `toml:"eeprom_address"` // 7-bit I2C address
	BusyPolls int    `toml:"i2c_busy_polls"`
}

func (hcfg *HardwareConfig) Check() {
	def := defaultConfig.Hardware

	// Every note must fit the PWM counter.
	gen := tone.New(nil, hcfg.RefClock)
	for _, p := range fw.Pitches {
		if _, _, err := gen.Settings(p); err != nil {
			log.ModEmu.Warnf("Invalid reference clock %d Hz (%v), fallback to %d Hz", hcfg.RefClock, err, def.RefClock)
			hcfg.RefClock = def.RefClock
			break
		}
	}
	if hcfg.Size < storage.Cells || hcfg.Size&(hcfg.Size-1) != 0 {
		log.ModEmu.Warnf("Invalid eeprom size %d, fallback to %d", hcfg.Size, def.Size)
		hcfg.Size = def.Size
	}
	if hcfg.Address == 0 || hcfg.Address > 0x7F {
		log.ModEmu.Warnf("Invalid eeprom address 0x%02X, fallback to 0x%02X", hcfg.Address, def.Address)
		hcfg.Address = def.Address
	}
	if hcfg.BusyPolls < 0 {
		log.ModEmu.Warnf("Invalid busy polls count %d, fallback to %d", hcfg.BusyPolls, def.BusyPolls)
		hcfg.BusyPolls = def.BusyPolls
	}
}

// ImagePath returns the path of the EEPROM image file.
func (hcfg HardwareConfig) ImagePath() string {
	if hcfg.Image != "" {
		return hcfg.Image
	}
	return filepath.Join(ConfigDir(), imageFilename)
}

type AudioConfig struct {
	DisableAudio bool    `toml:"disable_audio"`
	SampleRate   int     `toml:"sample_rate"`
	Volume       float64 `toml:"volume"` // 0 to 1
}

func (acfg *AudioConfig) Check() {
	def := defaultConfig.Audio
	if acfg.SampleRate < 8000 || acfg.SampleRate > 192000 {
		log.ModSound.Warnf("Invalid sample rate %d, fallback to %d", acfg.SampleRate, def.SampleRate)
		acfg.SampleRate = def.SampleRate
	}
	if acfg.Volume < 0 || acfg.Volume > 1 {
		log.ModSound.Warnf("Invalid volume %v, fallback to %v", acfg.Volume, def.Volume)
		acfg.Volume = def.Volume
	}
}

// InputConfig maps host keyboard key names (as SDL names them) to keypad
// symbols.
type InputConfig struct {
	Keys map[string]string `toml:"keys"`
}

func (icfg *InputConfig) Check() {
	layout := keypad.DefaultLayout
	for name, sym := range icfg.Keys {
		if len(sym) != 1 {
			log.ModInput.Warnf("Invalid keypad symbol %q for key %q, ignored", sym, name)
			delete(icfg.Keys, name)
			continue
		}
		if _, _, ok := layout.Find(sym[0]); !ok {
			log.ModInput.Warnf("No keypad key %q (mapped to %q), ignored", sym, name)
			delete(icfg.Keys, name)
		}
	}
}

// Check validates cfg, replacing invalid values with their defaults.
func (cfg *Config) Check() {
	cfg.Firmware.Check()
	cfg.Hardware.Check()
	cfg.Audio.Check()
	cfg.Input.Check()
}

var defaultConfig = Config{
	Firmware: FirmwareConfig{
		Debounce: Duration(fw.DefaultTiming.Debounce),
		Settle:   Duration(fw.DefaultTiming.Settle),
		Scan:     Duration(fw.DefaultTiming.Scan),
		Poll:     Duration(fw.DefaultTiming.Poll),
		Note:     Duration(fw.DefaultTiming.Note),
		Gap:      Duration(fw.DefaultTiming.Gap),
	},
	Hardware: HardwareConfig{
		RefClock:  tone.DefaultRefClock,
		Size:      eeprom.DefaultSize,
		Address:   storage.DefaultAddress,
		BusyPolls: 2,
	},
	Audio: AudioConfig{
		SampleRate: 44100,
		Volume:     0.5,
	},
}

// DefaultConfig returns the configuration used when there's no config file.
func DefaultConfig() Config {
	cfg := defaultConfig
	cfg.Input.Keys = map[string]string{
		"1": "1", "2": "2", "3": "3", "4": "4", "5": "5",
		"6": "6", "7": "7", "8": "8", "9": "9", "0": "0",
		"A": "A", "B": "B", "C": "C", "D": "D",
		"Z": "*", "X": "#",
	}
	return cfg
}

const DefaultFileMode = os.FileMode(0755)

var ConfigDir = sync.OnceValue(func() string {
	cfgdir, err := os.UserConfigDir()
	if err != nil {
		log.ModEmu.Fatalf("failed to get user config directory: %v", err)
	}

	dir := filepath.Join(cfgdir, "keytone")
	if err := os.MkdirAll(dir, DefaultFileMode); err != nil {
		log.ModEmu.Fatalf("failed to create directory %s: %v", dir, err)
	}
	return dir
})

const (
	cfgFilename   = "config.toml"
	imageFilename = "eeprom.bin"
)

// LoadConfig loads the configuration file at path. Missing keys keep their
// default value, invalid ones are replaced by it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return DefaultConfig(), errors.Wrapf(err, "load config %s", path)
	}
	cfg.Check()
	return cfg, nil
}

// LoadConfigOrDefault loads the configuration from the keytone config
// directory, or provides a default one.
func LoadConfigOrDefault() Config {
	path := filepath.Join(ConfigDir(), cfgFilename)
	cfg, err := LoadConfig(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.ModEmu.WarnZ("Failed to load config, using defaults").Error("err", err).End()
		}
		return DefaultConfig()
	}
	return cfg
}

// SaveConfig into the keytone config directory.
func SaveConfig(cfg Config) error {
	return saveConfig(cfg, filepath.Join(ConfigDir(), cfgFilename))
}

func saveConfig(cfg Config, path string) error {
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, buf, 0644)
}
