/*
   PCE - Main process.

   Copyright (c) 2026, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/pce/internal/hw/uart"
	"github.com/rcornwell/pce/internal/logging"
	"github.com/rcornwell/pce/internal/monitor"
	"github.com/rcornwell/pce/internal/system"
	"github.com/rcornwell/pce/telnet"
)

func main() {
	optClass := getopt.StringLong("class", 'm', "isapc", "Machine class (testpc, isapc)")
	optROM := getopt.StringLong("rom", 'r', "", "ROM image to map at -rombase")
	optROMBase := getopt.Uint32Long("rombase", 0, 0xF0000, "Physical base address for -rom")
	optRAM := getopt.Uint32Long("ram", 0, 0, "RAM size in bytes (0 = class default)")
	optFreq := getopt.Float64Long("freq", 0, 1_000_000, "CPU frequency in Hz")
	optIs386 := getopt.BoolLong("386", 0, "Run in 386+ mode with a 32-bit address bus")
	optBackend := getopt.StringLong("backend", 'b', "interpreter", "CPU backend: interpreter, cached, recompiler")
	optConfigFile := getopt.StringLong("config", 'c', "", "Device configuration file (disk/floppy images)")
	optTelnet := getopt.StringLong("telnet", 0, "", "Bridge the serial UART to a telnet listener at this address (e.g. :2300)")
	optDisplay := getopt.StringLong("display", 0, "headless", "Host backend: headless, term, sdl (sdl needs a -tags sdl build)")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Mirror debug-level log records to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var logFile *os.File
	if *optLogFile != "" {
		var err error
		logFile, err = os.Create(*optLogFile)
		if err != nil {
			slog.Error("pce: creating log file", "error", err)
			os.Exit(1)
		}
	}
	level := new(slog.LevelVar)
	level.Set(slog.LevelDebug)
	logger := slog.New(logging.NewHandler(logFile, os.Stderr, &slog.HandlerOptions{Level: level}, *optDebug))
	slog.SetDefault(logger)

	class, ok := system.LookupClass(*optClass)
	if !ok {
		logger.Error("pce: unknown machine class", "class", *optClass)
		os.Exit(1)
	}

	hostBackend, err := buildHost(*optDisplay, "pce: "+*optClass, 720, 400)
	if err != nil {
		logger.Error("pce: building host backend", "error", err)
		os.Exit(1)
	}

	sys, err := class.Build(system.BuildOptions{
		ROMPath:     *optROM,
		ROMBase:     *optROMBase,
		RAMSize:     *optRAM,
		FrequencyHz: *optFreq,
		Is386Plus:   *optIs386,
		Backend:     *optBackend,
		Host:        hostBackend,
		ConfigPath:  *optConfigFile,
	})
	if err != nil {
		logger.Error("pce: building system", "error", err)
		os.Exit(1)
	}

	if err := sys.Initialize(); err != nil {
		logger.Error("pce: initializing system", "error", err)
		os.Exit(1)
	}
	sys.Reset()

	var bridge *telnet.Bridge
	if *optTelnet != "" {
		var serial *uart.UART
		for _, c := range sys.Components() {
			if u, uartOK := c.(*uart.UART); uartOK {
				serial = u
				break
			}
		}
		if serial == nil {
			logger.Error("pce: -telnet given but machine class has no UART", "class", *optClass)
			os.Exit(1)
		}
		bridge, err = telnet.Listen(*optTelnet, serial)
		if err != nil {
			logger.Error("pce: starting telnet bridge", "error", err)
			os.Exit(1)
		}
		serial.Transmit = bridge.Transmit
		logger.Info("pce: telnet bridge listening", "addr", bridge.Addr())
	}

	logger.Info("pce started", "class", *optClass, "backend", *optBackend)

	mon := monitor.New(sys)
	go mon.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("pce: shutting down on signal")
		mon.Close()
		os.Exit(0)
	}()

	monitor.ConsoleReader(mon)
	mon.Close()
	if bridge != nil {
		bridge.Close()
	}
	if err := hostBackend.Close(); err != nil {
		logger.Warn("pce: closing host backend", "error", err)
	}
	logger.Info("pce stopped")
}
