package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

type fakeContext struct{ tick int }

func (c *fakeContext) AddLogContext(z *EntryZ) { z.Int("tick", c.tick) }

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	buf := &bytes.Buffer{}
	SetOutput(buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	return buf
}

func TestModuleEnabled(t *testing.T) {
	t.Cleanup(func() { DisableDebugModules(ModuleMaskAll) })

	if !ModBus.Enabled(WarnLevel) {
		t.Errorf("warnings must always be enabled")
	}
	if ModBus.Enabled(DebugLevel) {
		t.Errorf("debug should be disabled by default")
	}

	EnableDebugModules(ModBus.Mask())
	if !ModBus.Enabled(DebugLevel) {
		t.Errorf("debug should be enabled after EnableDebugModules")
	}
	if ModEeprom.Enabled(DebugLevel) {
		t.Errorf("enabling bus must not enable eeprom")
	}
}

func TestModuleByName(t *testing.T) {
	for _, name := range ModuleNames() {
		mod, ok := ModuleByName(name)
		if !ok {
			t.Fatalf("ModuleByName(%q) not found", name)
		}
		if mod.String() != name {
			t.Errorf("ModuleByName(%q).String() = %q", name, mod.String())
		}
	}

	if _, ok := ModuleByName("<error>"); ok {
		t.Errorf("placeholder module name must not resolve")
	}
	if _, ok := ModuleByName("nope"); ok {
		t.Errorf("unknown module name resolved")
	}
}

func TestEntryZ(t *testing.T) {
	buf := captureOutput(t)

	ModFw.WarnZ("sequence full").
		Int("cursor", 32).
		Hex8("note", 0x03).
		Error("err", errors.New("boom")).
		End()

	out := buf.String()
	for _, want := range []string{"sequence full", "cursor=32", "note=03", "err=boom", "_mod=fw"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q doesn't contain %q", out, want)
		}
	}
}

func TestEntryZDisabled(t *testing.T) {
	buf := captureOutput(t)

	// Debug is off: the chain runs on a nil entry.
	ModFw.DebugZ("hidden").Int("a", 1).String("b", "c").End()
	if buf.Len() != 0 {
		t.Errorf("disabled module wrote %q", buf.String())
	}
}

func TestContext(t *testing.T) {
	buf := captureOutput(t)

	ctx := &fakeContext{tick: 42}
	AddContext(ctx)
	defer RemoveContext(ctx)

	ModEmu.ErrorZ("with context").End()
	if !strings.Contains(buf.String(), "tick=42") {
		t.Errorf("context field missing from %q", buf.String())
	}
}
