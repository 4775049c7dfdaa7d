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

package emulator

import (
	"bytes"
	"log"
	"os"
	"testing"

	"github.com/spf13/afero"

	"github.com/andreas-jonsson/virtualstm/emulator/peripheral/gpio"
	"github.com/andreas-jonsson/virtualstm/emulator/peripheral/rcc"
)

func testMachine(t *testing.T, family gpio.Family) *Machine {
	t.Helper()
	m, err := NewMachine(Config{Family: family})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestClockGating(t *testing.T) {
	log.SetOutput(&bytes.Buffer{})
	defer log.SetOutput(os.Stderr)

	m := testMachine(t, gpio.F4)
	base := gpio.BaseAddress(gpio.PortA)

	// All clocks are off out of reset, the port is inert on the bus.
	if r := m.ReadRegister(base + gpio.RegMODER); r != 0 {
		t.Errorf("MODER = 0x%X with the clock off, want 0", r)
	}

	m.WriteRegister(rcc.Base+rcc.RegAHB1ENR, 1)
	if !m.Port(gpio.PortA).Enabled() {
		t.Fatal("AHB1ENR bit 0 should enable port A")
	}
	if r := m.ReadRegister(base + gpio.RegMODER); r != 0xA8000000 {
		t.Errorf("MODER = 0x%08X, want the F4 port A default", r)
	}
	if m.Port(gpio.PortB).Enabled() {
		t.Error("port B clock should still be off")
	}
}

func TestResetThroughRCC(t *testing.T) {
	m := testMachine(t, gpio.F4)
	m.EnableAllPorts()
	base := gpio.BaseAddress(gpio.PortA)

	m.WriteRegister(base+gpio.RegMODER, 0x55555555)
	m.WriteRegister(rcc.Base+rcc.RegAHB1RSTR, 1)

	if r := m.ReadRegister(base + gpio.RegMODER); r != 0xA8000000 {
		t.Errorf("MODER = 0x%08X, want the reset default", r)
	}

	m.WriteRegister(rcc.Base+rcc.RegAHB1RSTR, 0)
	if r := m.ReadRegister(base + gpio.RegMODER); r != 0xA8000000 {
		t.Errorf("MODER = 0x%08X, deassert must not change registers", r)
	}
}

func TestOutputReadBack(t *testing.T) {
	m := testMachine(t, gpio.F4)
	m.EnableAllPorts()
	base := gpio.BaseAddress(gpio.PortC)

	m.WriteRegister(base+gpio.RegMODER, 0x00000001) // PC0 output
	m.WriteRegister(base+gpio.RegBSRR, 1)

	if r := m.ReadRegister(base + gpio.RegIDR); r != 1 {
		t.Errorf("IDR = 0x%X, want 1", r)
	}
	if !m.Port(gpio.PortC).Pin(0) {
		t.Error("PC0 should be high")
	}
}

func TestSnapshot(t *testing.T) {
	fs := afero.NewMemMapFs()

	m := testMachine(t, gpio.F4)
	m.EnableAllPorts()
	base := gpio.BaseAddress(gpio.PortB)
	m.WriteRegister(base+gpio.RegODR, 0x0042)
	m.Port(gpio.PortB).SetInputLine(2, 1)

	if err := m.SaveState(fs, "test.state"); err != nil {
		t.Fatal(err)
	}

	m2 := testMachine(t, gpio.F4)
	if err := m2.LoadState(fs, "test.state"); err != nil {
		t.Fatal(err)
	}

	if r := m2.ReadRegister(base + gpio.RegODR); r != 0x0042 {
		t.Errorf("ODR = 0x%04X, want 0x0042", r)
	}
	if !m2.Port(gpio.PortB).Pin(2) {
		t.Error("external drive on PB2 should survive the round trip")
	}
	if r := m2.ReadRegister(rcc.Base + rcc.RegAHB1ENR); r == 0 {
		t.Error("RCC registers should survive the round trip")
	}

	m3 := testMachine(t, gpio.F2)
	if err := m3.LoadState(fs, "test.state"); err == nil {
		t.Error("expected an error loading an F4 snapshot on an F2 machine")
	}
}

func TestStep(t *testing.T) {
	m := testMachine(t, gpio.F2)
	if err := m.Step(1); err != nil {
		t.Fatal(err)
	}
}
