package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
	"periph.io/x/conn/v3/physic"

	eeprom "github.com/tocurd/go-eeprom"
	"github.com/tocurd/go-eeprom/buspirate"
	"github.com/tocurd/go-eeprom/internal/sim"
	"github.com/tocurd/go-eeprom/periphspi"
)

func main() {
	portName := flag.String("port", "", "Bus Pirate serial port (e.g. /dev/ttyUSB0, COM4)")
	speed := flag.Int("speed", int(buspirate.Speed1MHz), "Bus Pirate SPI speed index 0-7")
	spiBus := flag.String("spi", "", "spidev bus (e.g. SPI0.0)")
	csPin := flag.String("cs", "", "GPIO used as chip select with -spi (e.g. GPIO8)")
	hz := flag.Int64("hz", int64(periphspi.DefaultFrequency/physic.Hertz), "SPI clock in Hz with -spi")
	useSim := flag.Bool("sim", false, "Use an in-memory simulated device")
	part := flag.String("part", "25lc320", "EEPROM part: "+strings.Join(eeprom.ConfigNames(), ", "))
	var verbose verbosity
	flag.Var(&verbose, "v", "Debug logging (-v -v for every transaction)")
	list := flag.Bool("list", false, "List serial ports and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] command [args]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  status                         print the status register")
		fmt.Fprintln(os.Stderr, "  read ADDR N                    hex dump N bytes at ADDR")
		fmt.Fprintln(os.Stderr, "  write ADDR HEXBYTES            write bytes at ADDR and verify")
		fmt.Fprintln(os.Stderr, "  load FILE [ADDR]               program a .bin or .hex file")
		fmt.Fprintln(os.Stderr, "  dump FILE|-                    save the whole array")
		fmt.Fprintln(os.Stderr, "  protect none|quarter|half|all  set block protection")
		fmt.Fprintln(os.Stderr, "  erase [VALUE]                  fill the array (default 0xFF)")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: verbose.Level()}))

	if *list {
		ports, err := buspirate.List()
		if err != nil {
			fatal(logger, err)
		}
		for _, p := range ports {
			if p.IsUSB {
				fmt.Printf("%s\tUSB %s:%s %s\n", p.Name, p.VID, p.PID, p.SerialNumber)
			} else {
				fmt.Println(p.Name)
			}
		}
		return
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	conf, ok := eeprom.LookupConfig(*part)
	if !ok {
		fatal(logger, fmt.Errorf("unknown part %q", *part))
	}

	var dev *eeprom.EEPROM
	switch {
	case *useSim:
		s := sim.New(conf.Size, conf.PageSize)
		s.BusyPolls = 2
		dev = eeprom.New(s, s, conf)
	case *portName != "":
		bridge, err := buspirate.Open(*portName, nil, buspirate.Speed(*speed))
		if err != nil {
			fatal(logger, err)
		}
		bridge.Logger = logger
		dev = eeprom.New(bridge, bridge, conf)
	case *spiBus != "":
		port, err := periphspi.Open(*spiBus, *csPin, physic.Frequency(*hz)*physic.Hertz)
		if err != nil {
			fatal(logger, err)
		}
		dev = eeprom.New(port, port, conf)
	default:
		fatal(logger, errors.New("one of -port, -spi or -sim is required"))
	}
	dev.Logger = logger

	stdoutTTY := term.IsTerminal(int(os.Stdout.Fd()))
	err := run(dev, flag.Args(), os.Stdout, stdoutTTY)
	if cerr := dev.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fatal(logger, err)
	}
}

// -v 可重复，每出现一次加一级；-v=false 清零
type verbosity int

func (v *verbosity) String() string { return strconv.Itoa(int(*v)) }

func (v *verbosity) IsBoolFlag() bool { return true }

func (v *verbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v++
	} else {
		*v = 0
	}
	return nil
}

func (v verbosity) Level() slog.Level {
	switch {
	case v >= 2:
		return eeprom.LevelTrace
	case v == 1:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func fatal(logger *slog.Logger, err error) {
	logger.Error("eeprom", slog.String("err", err.Error()))
	os.Exit(1)
}

func run(dev *eeprom.EEPROM, args []string, out io.Writer, tty bool) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "status":
		status, err := dev.ReadStatus()
		if err != nil {
			return err
		}
		start, end := status.BlockProtection().Range(dev.Config.Size)
		fmt.Fprintln(out, status)
		if start < end {
			fmt.Fprintf(out, "protected 0x%04X-0x%04X\n", start, end-1)
		}
		return nil

	case "read":
		if len(args) != 2 {
			return errors.New("usage: read ADDR N")
		}
		addr, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		n, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return err
		}
		data, err := dev.ReadMemory(addr, int(n))
		if err != nil {
			return err
		}
		return hexDump(out, data)

	case "write":
		if len(args) != 2 {
			return errors.New("usage: write ADDR HEXBYTES")
		}
		addr, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(strings.ReplaceAll(args[1], " ", ""))
		if err != nil {
			return err
		}
		if err = dev.WriteMemory(addr, data, true); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d bytes at 0x%04X\n", len(data), addr)
		return nil

	case "load":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: load FILE [ADDR]")
		}
		var addr uint16
		if len(args) == 2 {
			var err error
			if addr, err = parseAddr(args[1]); err != nil {
				return err
			}
		}
		return dev.WriteFile(addr, args[0], true, func(progress float64) {
			fmt.Fprintf(out, "progress:%.2f%%\r\n", progress)
		})

	case "dump":
		if len(args) != 1 {
			return errors.New("usage: dump FILE|-")
		}
		if args[0] != "-" {
			return dev.ReadFile(0, dev.Config.Size, args[0])
		}
		data, err := dev.ReadMemory(0, dev.Config.Size)
		if err != nil {
			return err
		}
		if tty {
			return hexDump(out, data)
		}
		_, err = out.Write(data)
		return err

	case "protect":
		if len(args) != 1 {
			return errors.New("usage: protect none|quarter|half|all")
		}
		bp, err := eeprom.ParseBlockProtection(args[0])
		if err != nil {
			return err
		}
		return dev.SetBlockProtection(bp)

	case "erase":
		value := uint64(0xFF)
		if len(args) == 1 {
			var err error
			if value, err = strconv.ParseUint(args[0], 0, 8); err != nil {
				return err
			}
		}
		return dev.Erase(byte(value))
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func parseAddr(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return uint16(v), nil
}

func hexDump(out io.Writer, data []byte) error {
	d := hex.Dumper(out)
	if _, err := d.Write(data); err != nil {
		return err
	}
	return d.Close()
}
