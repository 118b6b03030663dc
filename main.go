// Command w25q64 reads, writes and erases a Winbond W25Q64 SPI NOR flash.
//
// Usage:
//
//	w25q64 [flags] <command> [arguments]
//
// Commands:
//
//	id                          print the JEDEC id
//	init                        reset the chip and check its identity
//	status                      print both status registers
//	read <addr> <len> [file]    read bytes (hex dump without file)
//	write <addr> <file>         erase, program and verify a raw file
//	                            (the rest of a partly covered sector is lost)
//	erase-sector <n>...         erase 4 KiB sectors
//	erase-chip                  erase the whole chip
//	write-status <sr1> <sr2>    write the status registers
//	dump <addr> <len> <file>    save a CRC protected image
//	flash <file>                write an image back where it came from
//	trace <file>                print a bus capture
//
// Examples:
//
//	w25q64 -transport periph -dev SPI0.0 -cs GPIO8 id
//	w25q64 -config /etc/w25q64.yaml dump 0 0x800000 backup.img
//	w25q64 -transport sim -sim-file flash.bin -trace s.trace write 0x1000 fw.bin
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/BertoldVdb/w25q64/config"
	"github.com/BertoldVdb/w25q64/sim"
	"github.com/BertoldVdb/w25q64/spiflash"
	"github.com/BertoldVdb/w25q64/tasks"
	"github.com/BertoldVdb/w25q64/trace"
	"github.com/BertoldVdb/w25q64/transport/periph"
	"github.com/BertoldVdb/w25q64/transport/spidev"
)

type app struct {
	cfg    config.Config
	log    *slog.Logger
	flash  *spiflash.Flash
	tasks  *tasks.Tasks
	verify bool

	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Error("close failed", "error", err)
		}
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openBus(a *app) (spiflash.Bus, error) {
	cfg := a.cfg

	switch cfg.Transport {
	case config.TransportSpidev:
		b, err := spidev.Open(cfg.SPI.Device, spidev.Config{SpeedHz: cfg.SPI.SpeedHz, Mode: cfg.SPI.Mode})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		return b, nil

	case config.TransportPeriph:
		freq := physic.Frequency(cfg.SPI.SpeedHz) * physic.Hertz
		b, err := periph.Open(cfg.SPI.Device, cfg.SPI.CSPin, freq, spi.Mode(cfg.SPI.Mode))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		return b, nil

	case config.TransportSim:
		chip := sim.New()
		chip.BusyPolls = cfg.Sim.BusyPolls
		if cfg.Sim.File != "" {
			if err := chip.LoadFile(cfg.Sim.File); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
			a.closers = append(a.closers, func() error {
				return chip.SaveFile(cfg.Sim.File)
			})
		}
		return chip, nil
	}

	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func (a *app) open() error {
	bus, err := openBus(a)
	if err != nil {
		return err
	}

	var loggers []trace.Logger
	if a.cfg.TraceFile != "" {
		fl, err := trace.NewFileLogger(a.cfg.TraceFile)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, fl.Close)
		loggers = append(loggers, fl)
	}
	if a.log.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, trace.NewSlogAdapter(a.log))
	}
	if len(loggers) > 0 {
		bus = trace.NewBus(bus, trace.NewMultiLogger(loggers...))
	}

	a.flash = spiflash.New(bus,
		spiflash.WithLogger(a.log),
		spiflash.WithPollLimit(a.cfg.Poll.Limit),
		spiflash.WithPollTimeout(a.cfg.Poll.Timeout),
		spiflash.WithResetDelay(a.cfg.ResetDelay),
		spiflash.WithMaxTransfer(a.cfg.SPI.MaxTransfer),
		spiflash.WithExpectedIdentity(spiflash.Identity{
			Manufacturer: a.cfg.Expect.Manufacturer,
			MemoryType:   a.cfg.Expect.MemoryType,
			Capacity:     a.cfg.Expect.Capacity,
		}),
	)

	a.tasks = tasks.New(a.flash, a.log)
	a.tasks.Progress = func(step string, done int, total int) {
		if done == total || done%64 == 0 {
			a.log.Debug("progress", "step", step, "done", done, "total", total)
		}
	}
	return nil
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <command> [arguments]\n\nCommands:\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(flag.CommandLine.Output(), "  %-14s %s\n", c.name, c.help)
	}
	fmt.Fprintf(flag.CommandLine.Output(), "\nFlags:\n")
	flag.PrintDefaults()
}

func main() {
	configFile := flag.String("config", "", "Board configuration file (YAML)")
	transport := flag.String("transport", "", "Transport: spidev, periph, sim")
	dev := flag.String("dev", "", "SPI device (spidev path or periph port name)")
	cs := flag.String("cs", "", "GPIO used as chip select (periph)")
	speed := flag.Uint("speed", 0, "SPI clock in Hz")
	maxTransfer := flag.Int("max-transfer", 0, "Maximum read payload per frame")
	pollLimit := flag.Int("poll-limit", 0, "Give up after this many status reads per wait (0: never)")
	timeout := flag.Duration("timeout", 0, "Give up when a single wait exceeds this (0: never)")
	traceFile := flag.String("trace", "", "Append a capture of every bus session to this file")
	simFile := flag.String("sim-file", "", "Backing file for the simulated chip")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	verify := flag.Bool("verify", true, "Read back and compare after writing")
	flag.Usage = usage
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	/* Flags given explicitly override the file */
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			cfg.Transport = *transport
		case "dev":
			cfg.SPI.Device = *dev
		case "cs":
			cfg.SPI.CSPin = *cs
		case "speed":
			cfg.SPI.SpeedHz = uint32(*speed)
		case "max-transfer":
			cfg.SPI.MaxTransfer = *maxTransfer
		case "poll-limit":
			cfg.Poll.Limit = *pollLimit
		case "timeout":
			cfg.Poll.Timeout = *timeout
		case "trace":
			cfg.TraceFile = *traceFile
		case "sim-file":
			cfg.Sim.File = *simFile
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cmd := findCommand(args[0])
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if len(args)-1 < cmd.minArgs {
		fmt.Fprintf(os.Stderr, "usage: %s %s\n", cmd.name, cmd.args)
		os.Exit(2)
	}

	a := &app{
		cfg:    cfg,
		log:    newLogger(cfg),
		verify: *verify,
	}

	if cmd.needsDevice {
		if err := a.open(); err != nil {
			a.close()
			a.log.Error("failed to open flash", "transport", cfg.Transport, "error", err)
			os.Exit(1)
		}
	}

	start := time.Now()
	err := cmd.run(a, args[1:])
	a.close()

	if err != nil {
		a.log.Error("command failed", "command", cmd.name, "error", err)
		os.Exit(1)
	}
	a.log.Debug("done", "command", cmd.name, "duration", time.Since(start))
}
