package system

import (
	"fmt"

	"github.com/rcornwell/pce/internal/bus"
	"github.com/rcornwell/pce/internal/component"
	"github.com/rcornwell/pce/internal/config"
	"github.com/rcornwell/pce/internal/cpu"
	"github.com/rcornwell/pce/internal/cpu/cached"
	"github.com/rcornwell/pce/internal/cpu/interpreter"
	"github.com/rcornwell/pce/internal/cpu/recompiler"
	"github.com/rcornwell/pce/internal/event"
	"github.com/rcornwell/pce/internal/host"
	"github.com/rcornwell/pce/internal/hw/ata"
	"github.com/rcornwell/pce/internal/hw/cmos"
	"github.com/rcornwell/pce/internal/hw/fdc"
	"github.com/rcornwell/pce/internal/hw/pic"
	"github.com/rcornwell/pce/internal/hw/pit"
	"github.com/rcornwell/pce/internal/hw/ps2"
	"github.com/rcornwell/pce/internal/hw/uart"
	"github.com/rcornwell/pce/internal/hw/vga"
)

// Class is a named, fixed wiring of a machine: the CPU model/frequency, a
// ROM placement, and a device set, built directly in Go code the way
// original_source/src/pce/systems/{isapc,pcat,...}.cpp hand-wire a
// concrete machine from the generic System. Devices a class doesn't want
// are simply never constructed; internal/config's Register/Load is used
// only for the handful of per-run knobs (attached disk/floppy images,
// extra serial ports) a config file may still override after the fixed
// set is built.
type Class struct {
	Name  string
	Build func(opts BuildOptions) (*System, error)
}

// BuildOptions parameterizes a Class.Build call: the ROM to map, the RAM
// size, the CPU model/frequency, which Backend to drive it with, the host
// surface to present frames to, and an optional configuration file for
// directives layered on top of the class's fixed device set.
type BuildOptions struct {
	ROMPath         string
	ROMBase         uint32
	ROMFileOffset   int64
	ROMExpectedSize int

	RAMSize     uint32
	FrequencyHz float64
	Is386Plus   bool
	Backend     string // "interpreter" (default), "cached", or "recompiler"

	Host host.Interface

	// CMOSBaseUnix seeds the CMOS real-time clock's epoch; zero means the
	// CMOS package's own zero-value power-on time.
	CMOSBaseUnix int64

	// ConfigPath, if non-empty, is loaded after the fixed device set is
	// built: e.g. "ATA0 1F0 irq=14 file=disk.img" to attach a drive image.
	ConfigPath string
}

var classes = map[string]*Class{}

// RegisterClass adds a Class to the registry, mirroring the teacher's
// config.RegisterModel pattern for device factories (config/configparser.go)
// at the system-class granularity instead of the single-device one.
func RegisterClass(c *Class) {
	classes[c.Name] = c
}

// LookupClass returns a previously registered Class by name.
func LookupClass(name string) (*Class, bool) {
	c, ok := classes[name]
	return c, ok
}

func init() {
	RegisterClass(&Class{Name: "testpc", Build: buildTestPC})
	RegisterClass(&Class{Name: "isapc", Build: buildISAPC})
}

func newBackend(kind string, c *cpu.CPU) cpu.Backend {
	switch kind {
	case "cached":
		return cached.New(c)
	case "recompiler":
		return recompiler.New(c)
	default:
		return interpreter.New(c)
	}
}

func addrBitsFor(is386Plus bool) int {
	if is386Plus {
		return 32
	}
	return 20
}

func loadROM(b *bus.Bus, opts BuildOptions) error {
	if opts.ROMPath == "" {
		return nil
	}
	rom, err := bus.LoadROM(opts.ROMPath, opts.ROMBase, opts.ROMFileOffset, 0, opts.ROMExpectedSize)
	if err != nil {
		return err
	}
	rom.Map(b)
	return nil
}

// buildTestPC wires spec.md's S1/S2-sized machine: RAM, a ROM, the PIC,
// PIT channel 0, and a byte-sink POST-code/line-buffer port pair, nothing
// else. It is deliberately minimal, the way original_source's TestPCSystem
// is a bare harness for test186/test386 rather than a bootable PC.
func buildTestPC(opts BuildOptions) (*System, error) {
	if opts.RAMSize == 0 {
		opts.RAMSize = 1 << 20 // 1 MiB, S1's RAM size
	}
	b := bus.New(addrBitsFor(opts.Is386Plus), opts.RAMSize)
	c := cpu.NewCPU(b, opts.FrequencyHz, opts.Is386Plus)
	backend := newBackend(opts.Backend, c)
	sched := event.NewScheduler()
	sys := New(b, c, backend, sched, opts.Host)

	if err := loadROM(b, opts); err != nil {
		return nil, fmt.Errorf("system: testpc: %w", err)
	}

	p := pic.New(b, func(asserted bool, vector int) { c.SetIRQState(asserted, cpu.Vector(vector)) })
	sys.AddComponent(p)
	sys.AddComponent(pit.New(b, sched, p.RaiseIRQ))
	sys.AddComponent(NewPostSink(b))

	if err := applyConfig(sys, opts.ConfigPath); err != nil {
		return nil, err
	}
	return sys, nil
}

// buildISAPC wires spec.md §4.9's fuller machine: testpc's set plus FDC,
// a primary IDE channel, a serial UART, the PS/2 controller (also driving
// the bus's A20 gate), CMOS/RTC, and VGA.
func buildISAPC(opts BuildOptions) (*System, error) {
	if opts.RAMSize == 0 {
		opts.RAMSize = 16 << 20 // 16 MiB, a plausible early-90s ISA machine
	}
	b := bus.New(addrBitsFor(opts.Is386Plus), opts.RAMSize)
	c := cpu.NewCPU(b, opts.FrequencyHz, opts.Is386Plus)
	backend := newBackend(opts.Backend, c)
	sched := event.NewScheduler()
	sys := New(b, c, backend, sched, opts.Host)

	if err := loadROM(b, opts); err != nil {
		return nil, fmt.Errorf("system: isapc: %w", err)
	}

	p := pic.New(b, func(asserted bool, vector int) { c.SetIRQState(asserted, cpu.Vector(vector)) })
	sys.AddComponent(p)
	sys.AddComponent(pit.New(b, sched, p.RaiseIRQ))
	sys.AddComponent(cmos.New(b, sched, opts.CMOSBaseUnix))
	sys.AddComponent(fdc.New(b, func(line int) { p.RaiseIRQ(line) }))
	sys.AddComponent(ata.New(b, 0x1F0, 14, func(line int) { p.RaiseIRQ(line) }))
	sys.AddComponent(uart.New(b, 0x3F8, 4, func(line int) { p.RaiseIRQ(line) }))
	sys.AddComponent(ps2.New(b, func(line int) { p.RaiseIRQ(line) }, b.SetA20))
	sys.AddComponent(vga.New(b))
	sys.AddComponent(NewPostSink(b))

	if err := applyConfig(sys, opts.ConfigPath); err != nil {
		return nil, err
	}
	return sys, nil
}

// applyConfig loads extra per-run directives (disk/floppy images, and the
// like) from an optional configuration file. The fixed device set above
// registers its own config.Factory for each instance it built, scoped to
// this one System, so the same model name in two different config files
// never collides across two different System instances built in the same
// process.
func applyConfig(sys *System, path string) error {
	if path == "" {
		return nil
	}
	for _, c := range sys.components {
		registerConfigFactory(c)
	}
	return config.Load(path)
}

// registerConfigFactory installs a config.Factory for devices that accept
// a "file=" option to attach backing media, matching the teacher's
// directive-per-line grammar: "ATA0 file=disk.img", "FDC file=boot.img".
func registerConfigFactory(c component.Component) {
	switch dev := c.(type) {
	case *ata.Controller:
		config.Register("ATA0", func(d config.Directive) error {
			if f, ok := optionValue(d, "file"); ok {
				return dev.AttachImage(f)
			}
			return nil
		})
	case *fdc.Controller:
		config.Register("FDC", func(d config.Directive) error {
			if f, ok := optionValue(d, "file"); ok {
				return dev.AttachImage(f)
			}
			return nil
		})
	}
}

func optionValue(d config.Directive, name string) (string, bool) {
	for _, o := range d.Options {
		if o.Name == name {
			return o.Value, true
		}
	}
	return "", false
}
