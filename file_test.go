package eeprom

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tocurd/go-eeprom/internal/sim"
)

func TestParseHexRecord(t *testing.T) {
	rec, ok, err := parseHexRecord(":10000000284801205D030008A1010008A3010008A1\r\n")
	if err != nil || !ok {
		t.Fatalf("parse failed: ok=%v err=%v", ok, err)
	}
	if rec.Type != hexRecordData || rec.Offset != 0 || len(rec.Data) != 16 || rec.Data[0] != 0x28 {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, ok, err = parseHexRecord("; comment"); ok || err != nil {
		t.Fatalf("comment line: ok=%v err=%v", ok, err)
	}
	if _, _, err = parseHexRecord(":0400100001020304E3"); !errors.Is(err, errHexChecksum) {
		t.Fatalf("expected checksum error, got %v", err)
	}
	if _, _, err = parseHexRecord(":0500100001020304E2"); err == nil {
		t.Fatalf("expected length error")
	}
	if _, _, err = parseHexRecord(":0G"); err == nil {
		t.Fatalf("expected hex error")
	}
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWriteFileBin(t *testing.T) {
	e, dev := newTestEEPROM(t, Conf25LC320)
	data := make([]byte, 600)
	for i := range data {
		data[i] = byte(i * 3)
	}
	path := writeTemp(t, "image.bin", data)

	var progress []float64
	if err := e.WriteFile(0x0100, path, true, func(p float64) { progress = append(progress, p) }); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dev.Memory[0x0100:0x0100+len(data)], data) {
		t.Fatalf("memory mismatch")
	}
	// 3 blocks of up to 256 bytes + final 100%.
	if len(progress) != 4 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress %v", progress)
	}

	out := filepath.Join(t.TempDir(), "dump.bin")
	if err := e.ReadFile(0x0100, len(data), out); err != nil {
		t.Fatal(err)
	}
	dumped, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dumped, data) {
		t.Fatalf("dump mismatch")
	}
}

func TestWriteFileHex(t *testing.T) {
	e, dev := newTestEEPROM(t, Conf25LC320)
	image := strings.Join([]string{
		":020000040000FA",
		":10000000284801205D030008A1010008A3010008A1",
		":0400100001020304E2",
		":03001E00AABBCCAE",
		":00000001FF",
		":0400100009090909C8", // after EOF, ignored
	}, "\r\n")
	path := writeTemp(t, "image.hex", []byte(image))
	if err := e.WriteFile(0x0200, path, true, nil); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x28, 0x48, 0x01, 0x20}
	if !bytes.Equal(dev.Memory[0x0200:0x0204], want) {
		t.Fatalf("got % X", dev.Memory[0x0200:0x0204])
	}
	if !bytes.Equal(dev.Memory[0x0210:0x0214], []byte{1, 2, 3, 4}) {
		t.Fatalf("got % X", dev.Memory[0x0210:0x0214])
	}
	// record at 0x1E crosses the 32 byte page boundary at 0x20.
	if !bytes.Equal(dev.Memory[0x021E:0x0221], []byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("got % X", dev.Memory[0x021E:0x0221])
	}
	if dev.Memory[0x0214] != 0xFF {
		t.Fatalf("record after EOF was written")
	}
}

func TestWriteFileHexUpperAddress(t *testing.T) {
	cases := []struct {
		name string
		addr uint16
		hex  []string
	}{
		{"linear upper 1", 0, []string{":020000040001F9", ":0400100001020304E2"}},
		// 0x0100 + 0xFFFF0000 + 0xFF00 would wrap to 0 in 32 bits.
		{"linear upper FFFF", 0x0100, []string{":02000004FFFFFC", ":02FF0000ABCD87"}},
		{"segment past 64K", 0, []string{":02000002F0000C", ":0400100001020304E2"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e, dev := newTestEEPROM(t, Conf25LC320)
			path := writeTemp(t, "far.hex", []byte(strings.Join(append(c.hex, ":00000001FF"), "\n")))
			if err := e.WriteFile(c.addr, path, false, nil); !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("expected ErrOutOfRange, got %v", err)
			}
			if dev.Count(sim.EventAssert) != 0 {
				t.Fatalf("bus touched: %d transactions", dev.Count(sim.EventAssert))
			}
			if !bytes.Equal(dev.Memory[0:2], []byte{0xFF, 0xFF}) {
				t.Fatalf("memory[0:2] = % X", dev.Memory[0:2])
			}
		})
	}
}

func TestWriteFileHexSegment(t *testing.T) {
	e, dev := newTestEEPROM(t, Conf25LC320)
	path := writeTemp(t, "seg.hex", []byte(":020000020010EC\n:0400100001020304E2\n:00000001FF\n"))
	if err := e.WriteFile(0, path, true, nil); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dev.Memory[0x0110:0x0114], []byte{1, 2, 3, 4}) {
		t.Fatalf("got % X", dev.Memory[0x0110:0x0114])
	}
}

func TestWriteFileRetryBudget(t *testing.T) {
	e, dev := newTestEEPROM(t, Conf25LC320)
	dev.StuckBusy = true
	path := writeTemp(t, "image.bin", []byte{1, 2, 3})
	err := e.WriteFile(0, path, false, nil)
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy after retries, got %v", err)
	}
}

func TestWriteFileNoRetry(t *testing.T) {
	cases := []struct {
		name  string
		addr  uint16
		want  error
		rdsr  int
		setup func(e *EEPROM, dev *sim.Device)
	}{
		{"protected", 0x0C00, ErrProtected, 1, func(e *EEPROM, dev *sim.Device) { dev.SetStatus(0x04) }},
		{"out of range", 0x0FFE, ErrOutOfRange, 0, func(e *EEPROM, dev *sim.Device) {}},
		{"bad config", 0, ErrConfig, 0, func(e *EEPROM, dev *sim.Device) { e.Config.PageSize = 24 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e, dev := newTestEEPROM(t, Conf25LC320)
			c.setup(e, dev)
			path := writeTemp(t, "image.bin", []byte{1, 2, 3, 4})
			if err := e.WriteFile(c.addr, path, false, nil); !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
			var rdsr, write int
			for _, tx := range dev.Transactions() {
				switch Command(tx[0]) {
				case CommandReadStatus:
					rdsr++
				case CommandWrite:
					write++
				}
			}
			if rdsr != c.rdsr || write != 0 {
				t.Fatalf("rdsr=%d write=%d, want rdsr=%d write=0", rdsr, write, c.rdsr)
			}
		})
	}
}

func TestWriteFileUnsupported(t *testing.T) {
	e, _ := newTestEEPROM(t, Conf25LC320)
	if err := e.WriteFile(0, "image.elf", false, nil); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
