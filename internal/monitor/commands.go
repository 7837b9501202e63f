/*
   PCE - Monitor command table.

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

package monitor

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rcornwell/pce/internal/hw/ata"
	"github.com/rcornwell/pce/internal/hw/fdc"
	"github.com/rcornwell/pce/internal/simtime"
	"github.com/rcornwell/pce/internal/system"
)

type cmd struct {
	name     string
	min      int
	process  func(*cmdLine, *Monitor) (bool, string, error)
	complete func(*cmdLine) []string
}

var cmdList = []cmd{
	{name: "help", min: 1, process: help},
	{name: "quit", min: 1, process: quit},
	{name: "stop", min: 3, process: stop},
	{name: "continue", min: 1, process: cont},
	{name: "start", min: 3, process: start},
	{name: "reset", min: 3, process: reset},
	{name: "show", min: 2, process: show, complete: showComplete},
	{name: "examine", min: 2, process: examine},
	{name: "deposit", min: 2, process: deposit},
	{name: "attach", min: 2, process: attach, complete: attachComplete},
	{name: "detach", min: 2, process: detach, complete: attachComplete},
	{name: "break", min: 3, process: setBreak},
	{name: "unbreak", min: 3, process: clearBreak},
	{name: "step", min: 2, process: step},
	{name: "save", min: 2, process: save},
	{name: "load", min: 2, process: load},
}

// ProcessLine parses and executes one command line, dispatching the work
// onto m's Run goroutine. It returns true when the console should exit.
func ProcessLine(line string, m *Monitor) (bool, error) {
	cl := &cmdLine{line: line}
	name := cl.getWord()
	if name == "" {
		return false, nil
	}

	match := matchCmd(name)
	if match == nil {
		return false, fmt.Errorf("unknown command: %s", name)
	}

	quit, out, err := match.process(cl, m)
	if out != "" {
		fmt.Println(out)
	}
	return quit, err
}

// CompleteLine offers tab-completions for the liner reader.
func CompleteLine(line string) []string {
	cl := &cmdLine{line: line}
	name := cl.getWord()

	if cl.isEOL() && !strings.HasSuffix(line, " ") {
		var out []string
		for _, c := range cmdList {
			if strings.HasPrefix(c.name, name) {
				out = append(out, c.name)
			}
		}
		return out
	}

	match := matchCmd(name)
	if match == nil || match.complete == nil {
		return nil
	}
	return match.complete(cl)
}

func matchCmd(name string) *cmd {
	var found *cmd
	for i := range cmdList {
		c := &cmdList[i]
		if !strings.HasPrefix(c.name, name) || len(name) < c.min {
			continue
		}
		if found != nil {
			return nil // ambiguous
		}
		found = c
	}
	return found
}

func help(_ *cmdLine, _ *Monitor) (bool, string, error) {
	var b strings.Builder
	b.WriteString("commands:")
	for _, c := range cmdList {
		b.WriteString(" " + c.name)
	}
	return false, b.String(), nil
}

func quit(_ *cmdLine, _ *Monitor) (bool, string, error) {
	return true, "", nil
}

func stop(_ *cmdLine, m *Monitor) (bool, string, error) {
	_, err := m.Dispatch(func(mon *Monitor) (string, error) {
		mon.setRunning(false)
		return "", nil
	})
	return false, "stopped", err
}

func cont(_ *cmdLine, m *Monitor) (bool, string, error) {
	_, err := m.Dispatch(func(mon *Monitor) (string, error) {
		mon.setRunning(true)
		return "", nil
	})
	return false, "running", err
}

func start(cl *cmdLine, m *Monitor) (bool, string, error) {
	return cont(cl, m)
}

func setBreak(cl *cmdLine, m *Monitor) (bool, string, error) {
	addr, err := cl.getHex()
	if err != nil {
		return false, "", err
	}
	_, err = m.Dispatch(func(mon *Monitor) (string, error) {
		mon.breakpoints[addr] = struct{}{}
		return "", nil
	})
	return false, fmt.Sprintf("breakpoint set at %08x", addr), err
}

func clearBreak(cl *cmdLine, m *Monitor) (bool, string, error) {
	addr, err := cl.getHex()
	if err != nil {
		return false, "", err
	}
	_, err = m.Dispatch(func(mon *Monitor) (string, error) {
		delete(mon.breakpoints, addr)
		return "", nil
	})
	return false, fmt.Sprintf("breakpoint cleared at %08x", addr), err
}

// step executes a single instruction and reports the register file
// afterward, the way a monitor's single-step command usually does.
func step(_ *cmdLine, m *Monitor) (bool, string, error) {
	out, err := m.Dispatch(func(mon *Monitor) (string, error) {
		mon.setRunning(false)
		ran := mon.sys.Backend.Run(1)
		if advance := simtime.TimeForCycles(ran, mon.sys.CPU.FrequencyHz); advance > 0 {
			mon.sys.Sched.Advance(advance)
		}
		return showRegisters(mon.sys), nil
	})
	return false, out, err
}

func reset(_ *cmdLine, m *Monitor) (bool, string, error) {
	_, err := m.Dispatch(func(mon *Monitor) (string, error) {
		mon.setRunning(false)
		mon.sys.Reset()
		return "", nil
	})
	return false, "reset", err
}

func show(cl *cmdLine, m *Monitor) (bool, string, error) {
	what := cl.getWord()
	return false, "", dispatchOnly(m, func(sys *system.System) (string, error) {
		switch what {
		case "", "regs", "registers":
			return showRegisters(sys), nil
		case "devices":
			return showDevices(sys), nil
		default:
			return "", fmt.Errorf("show: unknown item %q", what)
		}
	})
}

func showComplete(_ *cmdLine) []string {
	return []string{"regs", "devices"}
}

var gprNames = [8]string{"EAX", "ECX", "EDX", "EBX", "ESP", "EBP", "ESI", "EDI"}

func showRegisters(sys *system.System) string {
	var b strings.Builder
	fmt.Fprintf(&b, "EIP=%08x EFLAGS=%08x halted=%v\n", sys.CPU.Regs.EIP, sys.CPU.Regs.EFLAGS, sys.CPU.Halted)
	for i, name := range gprNames {
		fmt.Fprintf(&b, "%s=%08x ", name, sys.CPU.Regs.GPR32(i))
	}
	return strings.TrimRight(b.String(), " ")
}

func showDevices(sys *system.System) string {
	var b strings.Builder
	for _, c := range sys.Components() {
		fmt.Fprintf(&b, "%s\n", c.Name())
	}
	return strings.TrimRight(b.String(), "\n")
}

func examine(cl *cmdLine, m *Monitor) (bool, string, error) {
	addr, err := cl.getHex()
	if err != nil {
		return false, "", err
	}
	out, err := m.Dispatch(func(mon *Monitor) (string, error) {
		v := mon.sys.Bus.ReadByteUnchecked(addr)
		return fmt.Sprintf("%08x: %02x", addr, v), nil
	})
	return false, out, err
}

func deposit(cl *cmdLine, m *Monitor) (bool, string, error) {
	addr, err := cl.getHex()
	if err != nil {
		return false, "", err
	}
	val, err := cl.getHex()
	if err != nil {
		return false, "", err
	}
	_, err = m.Dispatch(func(mon *Monitor) (string, error) {
		mon.sys.Bus.WriteByteUnchecked(addr, uint8(val))
		return "", nil
	})
	return false, "", err
}

func attach(cl *cmdLine, m *Monitor) (bool, string, error) {
	name := cl.getWord()
	cl.skipSpace()
	path := cl.rest()
	if path == "" {
		return false, "", errors.New("attach: no file given")
	}
	_, err := m.Dispatch(func(mon *Monitor) (string, error) {
		for _, c := range mon.sys.Components() {
			switch dev := c.(type) {
			case *ata.Controller:
				if strings.EqualFold(name, "ata") || strings.EqualFold(name, dev.Name()) {
					return "", dev.AttachImage(path)
				}
			case *fdc.Controller:
				if strings.EqualFold(name, "fdc") || strings.EqualFold(name, dev.Name()) {
					return "", dev.AttachImage(path)
				}
			}
		}
		return "", fmt.Errorf("attach: no such device %q", name)
	})
	return false, "", err
}

func attachComplete(_ *cmdLine) []string {
	return []string{"ata", "fdc"}
}

func detach(cl *cmdLine, m *Monitor) (bool, string, error) {
	name := cl.getWord()
	_, err := m.Dispatch(func(mon *Monitor) (string, error) {
		for _, c := range mon.sys.Components() {
			switch dev := c.(type) {
			case *ata.Controller:
				if strings.EqualFold(name, "ata") || strings.EqualFold(name, dev.Name()) {
					return "", dev.Detach()
				}
			case *fdc.Controller:
				if strings.EqualFold(name, "fdc") || strings.EqualFold(name, dev.Name()) {
					return "", dev.Detach()
				}
			}
		}
		return "", fmt.Errorf("detach: no such device %q", name)
	})
	return false, "", err
}

func save(cl *cmdLine, m *Monitor) (bool, string, error) {
	cl.skipSpace()
	path := cl.rest()
	if path == "" {
		return false, "", errors.New("save: no file given")
	}
	_, err := m.Dispatch(func(mon *Monitor) (string, error) {
		data, err := mon.sys.Save()
		if err != nil {
			return "", err
		}
		return "", os.WriteFile(path, data, 0o644)
	})
	return false, "", err
}

func load(cl *cmdLine, m *Monitor) (bool, string, error) {
	cl.skipSpace()
	path := cl.rest()
	if path == "" {
		return false, "", errors.New("load: no file given")
	}
	_, err := m.Dispatch(func(mon *Monitor) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return "", mon.sys.Load(data)
	})
	return false, "", err
}

func dispatchOnly(m *Monitor, fn func(*system.System) (string, error)) error {
	out, err := m.Dispatch(func(mon *Monitor) (string, error) { return fn(mon.sys) })
	if out != "" {
		fmt.Println(out)
	}
	return err
}
