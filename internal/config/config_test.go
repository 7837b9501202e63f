package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesBaseIRQAndOptions(t *testing.T) {
	var got Directive
	Register("UART", func(d Directive) error {
		got = d
		return nil
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "test.cfg")
	contents := "# a comment\n\nUART 3F8 irq=4 baud=9600,fifo\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.HasBase || got.Base != 0x3F8 {
		t.Fatalf("Base = %#x (HasBase=%v), want 0x3F8", got.Base, got.HasBase)
	}
	if !got.HasIRQ || got.IRQ != 4 {
		t.Fatalf("IRQ = %d (HasIRQ=%v), want 4", got.IRQ, got.HasIRQ)
	}
	if len(got.Options) != 2 || got.Options[0].Name != "baud" || got.Options[0].Value != "9600" || got.Options[1].Name != "fifo" {
		t.Fatalf("Options = %+v, want [baud=9600 fifo]", got.Options)
	}
}

func TestLoadUnknownModelErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.cfg")
	if err := os.WriteFile(path, []byte("FROBNICATOR 200\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Load(path); err == nil {
		t.Fatal("expected an error for an unregistered model")
	}
}
