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

package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gdamore/tcell"
	"github.com/spf13/afero"

	"github.com/andreas-jonsson/virtualstm/emulator"
	"github.com/andreas-jonsson/virtualstm/emulator/peripheral/gpio"
	"github.com/andreas-jonsson/virtualstm/emulator/peripheral/rcc"
	"github.com/andreas-jonsson/virtualstm/version"
)

var modeChars = map[gpio.Mode]rune{
	gpio.ModeInput:   'i',
	gpio.ModeOutput:  'o',
	gpio.ModeAltFunc: 'a',
	gpio.ModeAnalog:  'n',
}

// lastLine keeps only the most recent diagnostic so the panel can show it
// without scrolling the screen.
type lastLine struct {
	text string
}

func (l *lastLine) Write(p []byte) (int, error) {
	l.text = strings.TrimSpace(string(p))
	return len(p), nil
}

func frontPanel(m *emulator.Machine) error {
	tcell.SetEncodingFallback(tcell.EncodingFallbackASCII)

	s, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	defer s.Fini()
	s.HideCursor()

	var diag lastLine
	log.SetOutput(&diag)
	defer log.SetOutput(os.Stderr)

	fs := afero.NewOsFs()

	var (
		selPort gpio.Port
		selPin  int
		status  string
	)

	for {
		drawPanel(s, m, selPort, selPin, status, diag.text)

		switch ev := s.PollEvent().(type) {
		case *tcell.EventResize:
			s.Sync()
		case *tcell.EventKey:
			port := m.Port(selPort)
			base := gpio.BaseAddress(selPort)
			status = ""

			switch {
			case ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q':
				return nil
			case ev.Key() == tcell.KeyUp:
				if selPort > gpio.PortA {
					selPort--
				}
			case ev.Key() == tcell.KeyDown:
				if int(selPort) < gpio.NumPorts-1 {
					selPort++
				}
			case ev.Key() == tcell.KeyLeft:
				if selPin < port.Pins()-1 {
					selPin++
				}
			case ev.Key() == tcell.KeyRight:
				if selPin > 0 {
					selPin--
				}
			case ev.Rune() == 'h':
				port.SetInputLine(selPin, 1)
			case ev.Rune() == 'l':
				port.SetInputLine(selPin, 0)
			case ev.Rune() == 'f':
				port.SetInputLine(selPin, -1)
			case ev.Rune() == 'o':
				odr := m.ReadRegister(base + gpio.RegODR)
				if odr>>selPin&1 != 0 {
					m.WriteRegister(base+gpio.RegBSRR, 1<<(16+selPin))
				} else {
					m.WriteRegister(base+gpio.RegBSRR, 1<<selPin)
				}
			case ev.Rune() == 'm':
				moder := m.ReadRegister(base + gpio.RegMODER)
				next := (moder>>(2*selPin)&3 + 1) & 3
				moder = moder&^(3<<(2*selPin)) | next<<(2*selPin)
				m.WriteRegister(base+gpio.RegMODER, moder)
			case ev.Rune() == 'e':
				enr := m.ReadRegister(rcc.Base + rcc.RegAHB1ENR)
				m.WriteRegister(rcc.Base+rcc.RegAHB1ENR, enr^1<<selPort)
			case ev.Rune() == 'R':
				rstr := m.ReadRegister(rcc.Base + rcc.RegAHB1RSTR)
				m.WriteRegister(rcc.Base+rcc.RegAHB1RSTR, rstr^1<<selPort)
			case ev.Rune() == 's':
				if err := m.SaveState(fs, statePath); err != nil {
					status = err.Error()
				} else {
					status = "state saved to " + statePath
				}
			case ev.Rune() == 'r':
				if err := m.LoadState(fs, statePath); err != nil {
					status = err.Error()
				} else {
					status = "state restored from " + statePath
				}
			}
		}
	}
}

func drawPanel(s tcell.Screen, m *emulator.Machine, selPort gpio.Port, selPin int, status, diag string) {
	s.Clear()

	title := fmt.Sprintf("virtualstm %s - STM32%v front panel", version.Current, m.Family())
	putString(s, 0, 0, tcell.StyleDefault.Bold(true), title)
	putString(s, 0, 2, tcell.StyleDefault, "        FEDCBA9876543210")

	for p := gpio.PortA; p < gpio.Port(gpio.NumPorts); p++ {
		port := m.Port(p)
		y := 3 + int(p)

		clk := "off"
		if port.Enabled() {
			clk = "on"
		}
		putString(s, 0, y, tcell.StyleDefault, fmt.Sprintf("%v  %-4s", p, clk))

		for pin := port.Pins() - 1; pin >= 0; pin-- {
			style := tcell.StyleDefault
			if port.Pin(pin) {
				style = style.Foreground(tcell.ColorGreen)
			}
			if port.ExternallyDriven(pin) {
				style = style.Underline(true)
			}
			if p == selPort && pin == selPin {
				style = style.Reverse(true)
			}

			ch := '0'
			if port.Pin(pin) {
				ch = '1'
			}
			s.SetContent(8+port.Pins()-1-pin, y, ch, nil, style)
		}
	}

	sel := m.Port(selPort)
	y := 4 + gpio.NumPorts
	detail := fmt.Sprintf("P%v%d: mode=%c level=%d ext=%t",
		selPort, selPin, modeChars[sel.PinMode(selPin)], boolBit(sel.Pin(selPin)), sel.ExternallyDriven(selPin))
	putString(s, 0, y, tcell.StyleDefault, detail)
	putString(s, 0, y+1, tcell.StyleDefault.Dim(true), diag)
	putString(s, 0, y+2, tcell.StyleDefault, status)
	putString(s, 0, y+4, tcell.StyleDefault.Dim(true),
		"arrows: select  h/l/f: drive pin  o: toggle odr  m: cycle mode  e: clock  R: reset  s/r: state  q: quit")

	s.Show()
}

func putString(s tcell.Screen, x, y int, style tcell.Style, str string) {
	for i, r := range str {
		s.SetContent(x+i, y, r, nil, style)
	}
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}
