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
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/andreas-jonsson/virtualstm/emulator"
	"github.com/andreas-jonsson/virtualstm/emulator/peripheral/gpio"
	"github.com/andreas-jonsson/virtualstm/version"
)

var (
	familyName string
	statePath  string
	ver        bool
)

func init() {
	flag.BoolVar(&ver, "v", false, "Print version information")
	flag.StringVar(&familyName, "family", "F4", "STM32 family to emulate")
	flag.StringVar(&statePath, "state", "virtualstm.state", "Path to the snapshot file")
}

func main() {
	flag.Parse()

	if ver {
		fmt.Printf("%s\n", version.Current.FullString())
		return
	}

	family, err := gpio.ParseFamily(familyName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	m, err := emulator.NewMachine(emulator.Config{Family: family})
	if err != nil {
		log.Fatal(err)
	}
	m.EnableAllPorts()

	if err := frontPanel(m); err != nil {
		log.Fatal(err)
	}
}
