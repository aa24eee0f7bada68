package main

import (
	"bytes"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	eeprom "github.com/tocurd/go-eeprom"
	"github.com/tocurd/go-eeprom/internal/sim"
)

func newSimEEPROM() (*eeprom.EEPROM, *sim.Device) {
	s := sim.New(eeprom.Conf25LC080A.Size, eeprom.Conf25LC080A.PageSize)
	s.BusyPolls = 1
	e := eeprom.New(s, s, eeprom.Conf25LC080A)
	e.Sleep = func(time.Duration) {}
	return e, s
}

func TestRunWriteRead(t *testing.T) {
	e, _ := newSimEEPROM()
	var out bytes.Buffer
	if err := run(e, []string{"write", "0x10", "de ad be ef"}, &out, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "wrote 4 bytes at 0x0010") {
		t.Fatalf("output %q", out.String())
	}
	out.Reset()
	if err := run(e, []string{"read", "0x10", "4"}, &out, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "de ad be ef") {
		t.Fatalf("dump %q", out.String())
	}
}

func TestRunProtectStatus(t *testing.T) {
	e, _ := newSimEEPROM()
	var out bytes.Buffer
	if err := run(e, []string{"protect", "half"}, &out, true); err != nil {
		t.Fatal(err)
	}
	if err := run(e, []string{"status"}, &out, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "BP=half") || !strings.Contains(out.String(), "protected 0x0200-0x03FF") {
		t.Fatalf("status %q", out.String())
	}
	if err := run(e, []string{"write", "0x300", "01"}, &out, true); err == nil {
		t.Fatalf("write into protected half should fail")
	}
}

func TestRunEraseDump(t *testing.T) {
	e, s := newSimEEPROM()
	var out bytes.Buffer
	if err := run(e, []string{"erase", "0x00"}, &out, false); err != nil {
		t.Fatal(err)
	}
	if err := run(e, []string{"dump", "-"}, &out, false); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), make([]byte, len(s.Memory))) {
		t.Fatalf("raw dump of %d bytes does not match erased array", out.Len())
	}

	path := filepath.Join(t.TempDir(), "dump.bin")
	if err := run(e, []string{"dump", path}, &out, false); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() != int64(len(s.Memory)) {
		t.Fatalf("dump file: %v %v", info, err)
	}
}

func TestRunLoad(t *testing.T) {
	e, s := newSimEEPROM()
	path := filepath.Join(t.TempDir(), "image.bin")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := run(e, []string{"load", path, "0x20"}, &out, true); err != nil {
		t.Fatal(err)
	}
	if string(s.Memory[0x20:0x25]) != "hello" {
		t.Fatalf("memory %q", s.Memory[0x20:0x25])
	}
	if !strings.Contains(out.String(), "progress:100.00%") {
		t.Fatalf("progress %q", out.String())
	}
}

func TestRunErrors(t *testing.T) {
	e, _ := newSimEEPROM()
	var out bytes.Buffer
	for _, args := range [][]string{
		{"bogus"},
		{"read", "0x10"},
		{"read", "zz", "1"},
		{"write", "0x10", "xyz"},
		{"protect", "most"},
		{"erase", "0x100"},
		{"read", "0x3FF", "2"},
	} {
		if err := run(e, args, &out, true); err == nil {
			t.Errorf("run(%q) should fail", args)
		}
	}
}

func TestVerbosityFlag(t *testing.T) {
	cases := []struct {
		args  []string
		want  verbosity
		level slog.Level
		rest  []string
	}{
		{[]string{"status"}, 0, slog.LevelInfo, []string{"status"}},
		{[]string{"-v", "status"}, 1, slog.LevelDebug, []string{"status"}},
		{[]string{"-v", "-v=true", "status", "-v"}, 2, eeprom.LevelTrace, []string{"status", "-v"}},
		{[]string{"-v", "--v", "-v=false", "read", "0", "1"}, 0, slog.LevelInfo, []string{"read", "0", "1"}},
	}
	for _, c := range cases {
		var v verbosity
		fs := flag.NewFlagSet("eeprom", flag.ContinueOnError)
		fs.Var(&v, "v", "")
		if err := fs.Parse(c.args); err != nil {
			t.Fatalf("%q: %v", c.args, err)
		}
		if v != c.want || v.Level() != c.level {
			t.Errorf("%q: verbosity %d level %v, want %d %v", c.args, v, v.Level(), c.want, c.level)
		}
		if strings.Join(fs.Args(), " ") != strings.Join(c.rest, " ") {
			t.Errorf("%q: args %q, want %q", c.args, fs.Args(), c.rest)
		}
	}

	var v verbosity
	fs := flag.NewFlagSet("eeprom", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	fs.Var(&v, "v", "")
	if err := fs.Parse([]string{"-v=loud"}); err == nil {
		t.Errorf("-v=loud should fail")
	}
}
