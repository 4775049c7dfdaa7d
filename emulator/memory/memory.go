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

package memory

import (
	"errors"
	"fmt"
	"log"
)

type Pointer uint32

func (p Pointer) String() string {
	return fmt.Sprintf("0x%08X", uint32(p))
}

// Memory is the register access contract for memory mapped peripherals.
// All accesses are native-endian, 4 bytes wide and 4 byte aligned.
type Memory interface {
	ReadRegister(addr Pointer) uint32
	WriteRegister(addr Pointer, value uint32)
}

type DummyMemory struct{}

func (m *DummyMemory) ReadRegister(addr Pointer) uint32 {
	log.Printf("reading unmapped memory: %v", addr)
	return 0
}

func (m *DummyMemory) WriteRegister(addr Pointer, value uint32) {
	log.Printf("writing unmapped memory: %v", addr)
}

var ErrOverlappingRegion = errors.New("overlapping memory region")

type region struct {
	from, to Pointer
	device   Memory
}

// Bus dispatches register accesses to the peripherals installed on it.
// Accesses that hit no mapped region fall through to a DummyMemory.
type Bus struct {
	regions []region
	dummy   DummyMemory
}

func (b *Bus) Install(device Memory, from, to Pointer) error {
	if to < from {
		return fmt.Errorf("invalid memory region: %v-%v", from, to)
	}
	for _, r := range b.regions {
		if from <= r.to && to >= r.from {
			return ErrOverlappingRegion
		}
	}
	b.regions = append(b.regions, region{from, to, device})
	return nil
}

func (b *Bus) device(addr Pointer) Memory {
	for _, r := range b.regions {
		if addr >= r.from && addr <= r.to {
			return r.device
		}
	}
	return &b.dummy
}

func (b *Bus) ReadRegister(addr Pointer) uint32 {
	return b.device(addr).ReadRegister(addr)
}

func (b *Bus) WriteRegister(addr Pointer, value uint32) {
	b.device(addr).WriteRegister(addr, value)
}
