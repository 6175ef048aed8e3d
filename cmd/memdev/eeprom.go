package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/memdev/cmd/memdev/console"
	"github.com/mklimuk/memdev/gpio"
	"github.com/mklimuk/memdev/i2c"
	"github.com/mklimuk/memdev/memory/stm24256"
)

var eepromFlags = []cli.Flag{
	&cli.StringFlag{Name: "scl", Usage: "clock line pin name", Value: "GPIO3"},
	&cli.StringFlag{Name: "sda", Usage: "data line pin name", Value: "GPIO2"},
	&cli.StringFlag{Name: "wp", Usage: "write-protect line pin name", Value: "GPIO4"},
	&cli.UintFlag{Name: "freq", Usage: "bus clock frequency in Hz", Value: 100_000},
}

var eepromCmd = cli.Command{
	Name:  "eeprom",
	Usage: "STM24256 two-wire EEPROM operations",
	Subcommands: cli.Commands{
		&eepromReadCmd,
		&eepromWriteCmd,
		&eepromDumpCmd,
	},
}

func eepromDevice(c *cli.Context) (*stm24256.STM24256, error) {
	wire, err := i2c.NewBitBang(c.String("scl"), c.String("sda"))
	if err != nil {
		return nil, fmt.Errorf("could not open bus: %w", err)
	}
	wp, err := gpio.NewHostPin(c.String("wp"))
	if err != nil {
		return nil, fmt.Errorf("could not open write-protect line: %w", err)
	}
	dev := stm24256.New(wire, wp, stm24256.WithFrequency(uint32(c.Uint("freq"))))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dev.Configure(ctx); err != nil {
		return nil, err
	}
	return dev, nil
}

var eepromReadCmd = cli.Command{
	Name:  "read",
	Usage: "read a byte range",
	Flags: append([]cli.Flag{
		&cli.IntFlag{Name: "address", Aliases: []string{"a"}, Usage: "start address", Required: true},
		&cli.IntFlag{Name: "length", Aliases: []string{"l"}, Usage: "number of bytes to read", Value: 16},
	}, eepromFlags...),
	Action: func(c *cli.Context) error {
		dev, err := eepromDevice(c)
		if err != nil {
			return console.Exit(1, "device error: %s", console.Red(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		data, err := dev.Read(ctx, uint16(c.Int("address")), c.Int("length"))
		if err != nil {
			return console.Exit(1, "read error: %s", console.Red(err))
		}
		console.Print(hex.Dump(data))
		return nil
	},
}

var eepromWriteCmd = cli.Command{
	Name:  "write",
	Usage: "write hex bytes at an address",
	Flags: append([]cli.Flag{
		&cli.IntFlag{Name: "address", Aliases: []string{"a"}, Usage: "start address", Required: true},
		&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "hex bytes to write (e.g. '01FF23')", Required: true},
		&cli.BoolFlag{Name: "no-verify", Usage: "skip post-write readback"},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	}, eepromFlags...),
	Action: func(c *cli.Context) error {
		data, err := hex.DecodeString(strings.TrimPrefix(c.String("data"), "0x"))
		if err != nil {
			return console.Exit(1, "invalid data hex string: %s", console.Red(err))
		}
		address := c.Int("address")
		if !c.Bool("yes") {
			answer, err := console.YesOrNo(fmt.Sprintf("write %d bytes at %#x?", len(data), address))
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if answer != console.Yes {
				console.Info("aborted")
				return nil
			}
		}
		dev, err := eepromDevice(c)
		if err != nil {
			return console.Exit(1, "device error: %s", console.Red(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err = dev.Write(ctx, uint16(address), data, !c.Bool("no-verify"))
		if err != nil {
			return console.Exit(1, "write error: %s", console.Red(err))
		}
		console.Infof("wrote %d bytes at %#x", len(data), address)
		return nil
	},
}

var eepromDumpCmd = cli.Command{
	Name:  "dump",
	Usage: "dump the whole memory array to a file",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file", Value: "eeprom.bin"},
	}, eepromFlags...),
	Action: func(c *cli.Context) error {
		dev, err := eepromDevice(c)
		if err != nil {
			return console.Exit(1, "device error: %s", console.Red(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		data, err := dev.Read(ctx, 0, stm24256.Capacity)
		if err != nil {
			return console.Exit(1, "read error: %s", console.Red(err))
		}
		err = os.WriteFile(c.String("output"), data, 0o644)
		if err != nil {
			return console.Exit(1, "could not write output file: %s", console.Red(err))
		}
		console.Infof("dumped %d bytes to %s", len(data), c.String("output"))
		return nil
	},
}
