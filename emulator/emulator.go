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
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"github.com/andreas-jonsson/virtualstm/emulator/memory"
	"github.com/andreas-jonsson/virtualstm/emulator/peripheral"
	"github.com/andreas-jonsson/virtualstm/emulator/peripheral/gpio"
	"github.com/andreas-jonsson/virtualstm/emulator/peripheral/rcc"
	"github.com/andreas-jonsson/virtualstm/version"
)

type Config struct {
	Family gpio.Family
}

// Machine wires the system bus, the clock controller and one GPIO device
// per port. The clock controller's AHB1 lines are connected to the reset
// and enable inputs of the ports, bit 0 gating port A and so on.
type Machine struct {
	family gpio.Family

	bus memory.Bus
	rcc *rcc.Device

	ports       [gpio.NumPorts]*gpio.Device
	peripherals []peripheral.Peripheral
}

func NewMachine(c Config) (*Machine, error) {
	m := &Machine{family: c.Family, rcc: &rcc.Device{}}
	m.peripherals = append(m.peripherals, m.rcc)

	for p := gpio.PortA; p < gpio.Port(gpio.NumPorts); p++ {
		dev, err := gpio.New(gpio.Config{Family: c.Family, Port: p})
		if err != nil {
			return nil, err
		}
		m.rcc.OnResetLine(int(p), dev.SetResetLine)
		m.rcc.OnEnableLine(int(p), dev.SetEnableLine)
		m.ports[p] = dev
		m.peripherals = append(m.peripherals, dev)
	}

	for _, p := range m.peripherals {
		if err := p.Install(m); err != nil {
			return nil, fmt.Errorf("%s: %v", p.Name(), err)
		}
	}

	m.Reset()
	return m, nil
}

func (m *Machine) InstallMemoryDevice(device memory.Memory, from, to memory.Pointer) error {
	return m.bus.Install(device, from, to)
}

func (m *Machine) Reset() {
	for _, p := range m.peripherals {
		p.Reset()
	}
}

func (m *Machine) Step(cycles int) error {
	for _, p := range m.peripherals {
		if err := p.Step(cycles); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) ReadRegister(addr memory.Pointer) uint32 {
	return m.bus.ReadRegister(addr)
}

func (m *Machine) WriteRegister(addr memory.Pointer, value uint32) {
	m.bus.WriteRegister(addr, value)
}

func (m *Machine) Family() gpio.Family {
	return m.family
}

func (m *Machine) Port(p gpio.Port) *gpio.Device {
	return m.ports[p]
}

// EnableAllPorts switches on the GPIO clocks through a real AHB1ENR bus
// write, the way firmware boot code does.
func (m *Machine) EnableAllPorts() {
	enr := m.ReadRegister(rcc.Base + rcc.RegAHB1ENR)
	enr |= 1<<gpio.NumPorts - 1
	m.WriteRegister(rcc.Base+rcc.RegAHB1ENR, enr)
}

// Snapshot is the machine wide persisted state, one flat record per
// peripheral plus the emulator version that produced it.
type Snapshot struct {
	Version version.Version
	Family  gpio.Family
	RCC     rcc.State
	Ports   []gpio.State
}

func (m *Machine) SaveState(fs afero.Fs, name string) error {
	s := Snapshot{
		Version: version.Current,
		Family:  m.family,
		RCC:     m.rcc.State(),
	}
	for _, p := range m.ports {
		s.Ports = append(s.Ports, p.State())
	}

	data, err := json.MarshalIndent(&s, "", "\t")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, name, data, 0644)
}

func (m *Machine) LoadState(fs afero.Fs, name string) error {
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return err
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if !version.Current.Compatible(s.Version) {
		return fmt.Errorf("incompatible snapshot version: %v", s.Version)
	}
	if s.Family != m.family {
		return fmt.Errorf("snapshot is for STM32%v, machine is STM32%v", s.Family, m.family)
	}
	if len(s.Ports) != len(m.ports) {
		return fmt.Errorf("unexpected port count: %d", len(s.Ports))
	}

	if err := m.rcc.Restore(s.RCC); err != nil {
		return err
	}
	for i, p := range m.ports {
		if err := p.Restore(s.Ports[i]); err != nil {
			return err
		}
	}
	return nil
}
