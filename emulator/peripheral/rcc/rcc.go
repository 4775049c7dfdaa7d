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

package rcc

import (
	"fmt"

	"github.com/andreas-jonsson/virtualstm/emulator/memory"
	"github.com/andreas-jonsson/virtualstm/emulator/peripheral"
)

const (
	Base = memory.Pointer(0x40023800)

	RegAHB1RSTR = 0x10
	RegAHB1ENR  = 0x30

	peripheralSize = 0x400

	// NumLines is the number of peripherals one AHB1 register can gate.
	NumLines = 32
)

// Device is a minimal model of the F2/F4 style reset and clock controller.
// AHB1RSTR and AHB1ENR drive the reset/enable lines of attached
// peripherals, every other register is plain storage so firmware clock
// setup sequences read back what they wrote. No clock tree is modeled.
type Device struct {
	regs [peripheralSize / 4]uint32

	resetLines  [NumLines][]func(bool)
	enableLines [NumLines][]func(bool)
}

func (d *Device) Name() string {
	return "STM32 Reset and Clock Control"
}

func (d *Device) Install(m peripheral.Machine) error {
	return m.InstallMemoryDevice(d, Base, Base+peripheralSize-1)
}

func (d *Device) Reset() {
	rstr, enr := d.regs[RegAHB1RSTR/4], d.regs[RegAHB1ENR/4]
	d.regs = [peripheralSize / 4]uint32{}
	d.fan(d.resetLines[:], rstr, 0)
	d.fan(d.enableLines[:], enr, 0)
}

func (d *Device) Step(int) error {
	return nil
}

// OnResetLine attaches a listener to bit line of AHB1RSTR.
func (d *Device) OnResetLine(line int, fn func(bool)) {
	if line < 0 || line >= NumLines {
		panic(fmt.Sprintf("rcc: line %d out of range", line))
	}
	d.resetLines[line] = append(d.resetLines[line], fn)
}

// OnEnableLine attaches a listener to bit line of AHB1ENR.
func (d *Device) OnEnableLine(line int, fn func(bool)) {
	if line < 0 || line >= NumLines {
		panic(fmt.Sprintf("rcc: line %d out of range", line))
	}
	d.enableLines[line] = append(d.enableLines[line], fn)
}

func (d *Device) fan(lines [][]func(bool), old, new uint32) {
	for i := 0; i < NumLines; i++ {
		ob := old>>i&1 != 0
		nb := new>>i&1 != 0
		if ob == nb {
			continue
		}
		for _, fn := range lines[i] {
			fn(nb)
		}
	}
}

func (d *Device) ReadRegister(addr memory.Pointer) uint32 {
	offset := uint32(addr) & (peripheralSize - 1)
	return d.regs[offset/4]
}

func (d *Device) WriteRegister(addr memory.Pointer, value uint32) {
	offset := uint32(addr) & (peripheralSize - 1)
	old := d.regs[offset/4]
	d.regs[offset/4] = value

	switch offset {
	case RegAHB1RSTR:
		d.fan(d.resetLines[:], old, value)
	case RegAHB1ENR:
		d.fan(d.enableLines[:], old, value)
	}
}

const StateVersion = 1

type State struct {
	Version int
	Regs    []uint32
}

func (d *Device) State() State {
	return State{Version: StateVersion, Regs: append([]uint32(nil), d.regs[:]...)}
}

// Restore loads the register file without re-driving the attached lines.
// Peripherals restore their own line levels from their own state.
func (d *Device) Restore(s State) error {
	if s.Version != StateVersion {
		return fmt.Errorf("unsupported rcc state version: %d", s.Version)
	}
	if len(s.Regs) != len(d.regs) {
		return fmt.Errorf("unexpected rcc register count: %d", len(s.Regs))
	}
	copy(d.regs[:], s.Regs)
	return nil
}
