/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

/*
References:
	RM0090 - STM32F405/415, STM32F407/417, STM32F427/437 and STM32F429/439 reference manual
	RM0033 - STM32F205/215, STM32F207/217 reference manual
*/

package gpio

import (
	"fmt"
	"log"

	"github.com/andreas-jonsson/virtualstm/emulator/memory"
	"github.com/andreas-jonsson/virtualstm/emulator/peripheral"
)

type Family int

const (
	// High performance
	F2 Family = iota
	F4
	H5
	F7
	H7
	// Mainstream
	C0
	F0
	G0
	F1
	F3
	G4
	// Ultra low power
	L0
	L4
	L4Plus
	L5
	U5
	// Wireless
	WL
	WB0
	WB
	WBA
)

var familyNames = map[Family]string{
	F2: "F2", F4: "F4", H5: "H5", F7: "F7", H7: "H7",
	C0: "C0", F0: "F0", G0: "G0", F1: "F1", F3: "F3", G4: "G4",
	L0: "L0", L4: "L4", L4Plus: "L4+", L5: "L5", U5: "U5",
	WL: "WL", WB0: "WB0", WB: "WB", WBA: "WBA",
}

func (f Family) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

func ParseFamily(s string) (Family, error) {
	for f, name := range familyNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown STM32 family: %s", s)
}

type Port int

const (
	PortA Port = iota
	PortB
	PortC
	PortD
	PortE
	PortF
	PortG
	PortH
	PortI
	PortJ
	PortK
)

const NumPorts = int(PortK) + 1

func (p Port) String() string {
	if p >= PortA && p <= PortK {
		return string(rune('A' + p))
	}
	return fmt.Sprintf("Port(%d)", int(p))
}

// Mode is the 2 bit per-pin function selector held in MODER.
type Mode uint8

const (
	ModeInput Mode = iota
	ModeOutput
	ModeAltFunc
	ModeAnalog
)

// Pull is the 2 bit per-pin resistor selector held in PUPDR.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

const (
	RegMODER   = 0x000
	RegOTYPER  = 0x004
	RegOSPEEDR = 0x008
	RegPUPDR   = 0x00C
	RegIDR     = 0x010
	RegODR     = 0x014
	RegBSRR    = 0x018
	RegLCKR    = 0x01C
	RegAFRL    = 0x020
	RegAFRH    = 0x024
	RegBRR     = 0x028
)

const (
	// NumPins is the widest port any STM32 implements.
	NumPins = 16

	peripheralSize = 0x400
	portABase      = memory.Pointer(0x40020000)
)

type Config struct {
	Family  Family
	Port    Port
	NumPins int // 0 means all 16
}

// Device models a single GPIO port. The packed MODER/PUPDR/ODR/IDR words
// visible on the bus are unpacked into per-pin fields here; packing only
// happens at the register and snapshot boundaries.
type Device struct {
	family  Family
	port    Port
	numPins int

	mode   [NumPins]Mode
	pull   [NumPins]Pull
	output [NumPins]bool
	input  [NumPins]bool

	// Registers the model stores but does not interpret.
	otyper, ospeedr, lckr, afrl, afrh uint32

	// ODR[31:16] is reserved but reads back as written. BSRR and BRR
	// never touch it.
	odrHigh uint16

	extLevel  [NumPins]bool
	extDriven [NumPins]bool

	// Line levels from the reset and clock controller.
	resetLine, enable bool

	stateChanged []func()
	pinChanged   [NumPins][]func(bool)
}

func New(c Config) (*Device, error) {
	if c.NumPins == 0 {
		c.NumPins = NumPins
	}
	if c.NumPins < 1 || c.NumPins > NumPins {
		return nil, fmt.Errorf("invalid pin count: %d", c.NumPins)
	}
	if c.Port < PortA || c.Port > PortK {
		return nil, fmt.Errorf("invalid port: %d", int(c.Port))
	}
	return &Device{family: c.Family, port: c.Port, numPins: c.NumPins}, nil
}

func (d *Device) Name() string {
	return fmt.Sprintf("STM32%s GPIO Port %s", d.family, d.port)
}

// BaseAddress returns the AHB1 base of a port's register window.
func BaseAddress(p Port) memory.Pointer {
	return portABase + memory.Pointer(p)*peripheralSize
}

func (d *Device) Install(m peripheral.Machine) error {
	base := BaseAddress(d.port)
	return m.InstallMemoryDevice(d, base, base+peripheralSize-1)
}

func (d *Device) Step(int) error {
	return nil
}

// Reset puts every bus visible register back to its hardware default and
// recomputes the pin state. The enable flag is not touched, it is ruled by
// the clock controller. IDR is not reset directly, resolve rebuilds it.
func (d *Device) Reset() {
	d.setMODER(0)
	d.setPUPDR(0)
	d.setODR(0)
	d.otyper = 0
	d.ospeedr = 0
	d.lckr = 0
	d.afrl = 0
	d.afrh = 0

	if d.family == F4 {
		switch d.port {
		case PortA:
			d.setMODER(0xA8000000)
			d.setPUPDR(0x64000000)
		case PortB:
			d.setMODER(0x00000280)
			d.setPUPDR(0x00000100)
			d.ospeedr = 0x000000C0
		}
	}

	d.resolve()
}

// SetResetLine drives the reset input from the clock controller. The level
// is tracked so re-assertions do not re-run the register reset.
func (d *Device) SetResetLine(level bool) {
	if d.resetLine == level {
		return
	}
	d.resetLine = level
	if level {
		d.Reset()
	} else {
		d.resolve()
	}
}

// SetEnableLine drives the clock enable input. While the line is low the
// register file is inert on the bus but keeps its contents.
func (d *Device) SetEnableLine(level bool) {
	if d.enable == level {
		return
	}
	d.enable = level
	d.resolve()
}

func (d *Device) Enabled() bool {
	return d.enable
}

// SetInputLine drives a pin from the outside. A negative value disconnects
// the pin, zero drives it low and a positive value drives it high.
func (d *Device) SetInputLine(pin, value int) {
	if pin < 0 || pin >= d.numPins {
		panic(fmt.Sprintf("gpio: pin %d out of range", pin))
	}
	d.extDriven[pin] = value >= 0
	if value >= 0 {
		d.extLevel[pin] = value != 0
	}
	d.resolve()
}

// OnStateChanged registers a listener pulsed after every resolve pass,
// whether or not any pin changed.
func (d *Device) OnStateChanged(fn func()) {
	d.stateChanged = append(d.stateChanged, fn)
}

// OnPinChanged registers a listener for one pin. It fires with the new
// level when the resolved state of an input mode pin changes.
func (d *Device) OnPinChanged(pin int, fn func(bool)) {
	if pin < 0 || pin >= d.numPins {
		panic(fmt.Sprintf("gpio: pin %d out of range", pin))
	}
	d.pinChanged[pin] = append(d.pinChanged[pin], fn)
}

func (d *Device) Pins() int {
	return d.numPins
}

// Pin returns the current resolved level of a pin, as IDR sees it.
func (d *Device) Pin(pin int) bool {
	if pin < 0 || pin >= d.numPins {
		panic(fmt.Sprintf("gpio: pin %d out of range", pin))
	}
	return d.input[pin]
}

func (d *Device) PinMode(pin int) Mode {
	if pin < 0 || pin >= d.numPins {
		panic(fmt.Sprintf("gpio: pin %d out of range", pin))
	}
	return d.mode[pin]
}

func (d *Device) ExternallyDriven(pin int) bool {
	if pin < 0 || pin >= d.numPins {
		panic(fmt.Sprintf("gpio: pin %d out of range", pin))
	}
	return d.extDriven[pin]
}

// resolve folds mode, pull, internal drive and external drive into the
// observed level of every pin. External drive wins unconditionally, then
// firmware output, then the pull-up. A floating pin with no pull-up reads
// low. Listeners fire in ascending pin index.
func (d *Device) resolve() {
	for i := 0; i < d.numPins; i++ {
		if d.mode[i] == ModeOutput && d.extDriven[i] {
			log.Printf("%s: pin %d short circuited", d.Name(), i)
		}

		var level bool
		switch {
		case d.extDriven[i]:
			level = d.extLevel[i]
		case d.mode[i] == ModeOutput:
			level = d.output[i]
		default:
			level = d.pull[i] == PullUp
		}

		changed := level != d.input[i]
		d.input[i] = level

		// Only input mode pins are wired to the interrupt logic.
		if changed && d.mode[i] == ModeInput {
			for _, fn := range d.pinChanged[i] {
				fn(level)
			}
		}
	}
	for _, fn := range d.stateChanged {
		fn()
	}
}

func (d *Device) moder() uint32 {
	var r uint32
	for i, m := range d.mode {
		r |= uint32(m) << (i * 2)
	}
	return r
}

func (d *Device) setMODER(v uint32) {
	for i := range d.mode {
		d.mode[i] = Mode(v >> (i * 2) & 3)
	}
}

func (d *Device) pupdr() uint32 {
	var r uint32
	for i, p := range d.pull {
		r |= uint32(p) << (i * 2)
	}
	return r
}

func (d *Device) setPUPDR(v uint32) {
	// The reserved value 3 is stored as-is for bit exact readback.
	// Resolution treats it like no pull.
	for i := range d.pull {
		d.pull[i] = Pull(v >> (i * 2) & 3)
	}
}

func (d *Device) odr() uint32 {
	r := uint32(d.odrHigh) << 16
	for i, o := range d.output {
		if o {
			r |= 1 << i
		}
	}
	return r
}

func (d *Device) setODR(v uint32) {
	for i := range d.output {
		d.output[i] = v>>i&1 != 0
	}
	d.odrHigh = uint16(v >> 16)
}

func (d *Device) idr() uint32 {
	var r uint32
	for i, in := range d.input {
		if in {
			r |= 1 << i
		}
	}
	return r
}

func (d *Device) ReadRegister(addr memory.Pointer) uint32 {
	if !d.enable {
		log.Printf("%s: peripheral is disabled", d.Name())
		return 0
	}

	offset := uint32(addr) & (peripheralSize - 1)
	switch offset {
	case RegMODER:
		return d.moder()
	case RegOTYPER:
		return d.otyper
	case RegOSPEEDR:
		return d.ospeedr
	case RegPUPDR:
		return d.pupdr()
	case RegIDR:
		return d.idr()
	case RegODR:
		return d.odr()
	case RegBSRR:
		return 0 // BSRR is write-only
	case RegLCKR:
		return d.lckr
	case RegAFRL:
		return d.afrl
	case RegAFRH:
		return d.afrh
	case RegBRR:
		if d.family != F4 {
			return 0 // BRR is write-only
		}
		// STM32F4xx SoCs do not have this register.
		log.Printf("%s: bad read offset 0x%03X", d.Name(), offset)
	default:
		log.Printf("%s: bad read offset 0x%03X", d.Name(), offset)
	}
	return 0
}

func (d *Device) WriteRegister(addr memory.Pointer, value uint32) {
	if !d.enable {
		log.Printf("%s: peripheral is disabled", d.Name())
		return
	}

	offset := uint32(addr) & (peripheralSize - 1)
	switch offset {
	case RegMODER:
		d.setMODER(value)
	case RegOTYPER:
		d.otyper = value
	case RegOSPEEDR:
		d.ospeedr = value
	case RegPUPDR:
		d.setPUPDR(value)
	case RegIDR:
		// IDR is read-only.
	case RegODR:
		d.setODR(value)
	case RegBSRR:
		odr := d.odr()
		odr &^= value >> 16 & 0xFFFF
		// Set bits have higher priority than reset bits.
		odr |= value & 0xFFFF
		d.setODR(odr)
	case RegLCKR:
		// TODO: implement the LOCK key write sequence.
		d.lckr = value
	case RegAFRL:
		d.afrl = value
	case RegAFRH:
		d.afrh = value
	case RegBRR:
		if d.family != F4 {
			d.setODR(d.odr() &^ (value & 0xFFFF))
			break
		}
		// STM32F4xx SoCs do not have this register.
		log.Printf("%s: bad write offset 0x%03X", d.Name(), offset)
	default:
		log.Printf("%s: bad write offset 0x%03X", d.Name(), offset)
	}

	d.resolve()
}

const StateVersion = 1

// State is the flat snapshot record of one port. IDR is deliberately
// absent, Restore rebuilds it from the other fields.
type State struct {
	Version int

	MODER   uint32
	OTYPER  uint32
	OSPEEDR uint32
	PUPDR   uint32
	ODR     uint32
	LCKR    uint32
	AFRL    uint32
	AFRH    uint32

	Reset  bool
	Enable bool

	In     uint32
	InMask uint32
}

func (d *Device) State() State {
	var in, inMask uint32
	for i := 0; i < NumPins; i++ {
		if d.extLevel[i] {
			in |= 1 << i
		}
		if d.extDriven[i] {
			inMask |= 1 << i
		}
	}
	return State{
		Version: StateVersion,
		MODER:   d.moder(),
		OTYPER:  d.otyper,
		OSPEEDR: d.ospeedr,
		PUPDR:   d.pupdr(),
		ODR:     d.odr(),
		LCKR:    d.lckr,
		AFRL:    d.afrl,
		AFRH:    d.afrh,
		Reset:   d.resetLine,
		Enable:  d.enable,
		In:      in,
		InMask:  inMask,
	}
}

func (d *Device) Restore(s State) error {
	if s.Version != StateVersion {
		return fmt.Errorf("unsupported gpio state version: %d", s.Version)
	}

	d.setMODER(s.MODER)
	d.otyper = s.OTYPER
	d.ospeedr = s.OSPEEDR
	d.setPUPDR(s.PUPDR)
	d.setODR(s.ODR)
	d.lckr = s.LCKR
	d.afrl = s.AFRL
	d.afrh = s.AFRH
	d.resetLine = s.Reset
	d.enable = s.Enable
	for i := 0; i < NumPins; i++ {
		d.extLevel[i] = s.In>>i&1 != 0
		d.extDriven[i] = s.InMask>>i&1 != 0
	}

	d.resolve()
	return nil
}
