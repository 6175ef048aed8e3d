package command

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	eeprom "github.com/mklimuk/memdev/memory/25aa1024"
)

func openDevice(c *cli.Context) (*eeprom.EEPROM25AA1024, error) {
	adaptor := nanopi.NewNeoAdaptor()
	dev := eeprom.New(adaptor, c.String("bus"))
	if err := dev.Start(); err != nil {
		return nil, fmt.Errorf("SPI device start error: %w", err)
	}
	return dev, nil
}

var MemoryReadCmd = &cli.Command{
	Name:  "read",
	Usage: "read SPI EEPROM memory",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "bus", Usage: "SPI bus name", Value: "spi"},
		&cli.IntFlag{Name: "address", Usage: "memory address to read", Required: true},
		&cli.IntFlag{Name: "length", Usage: "number of bytes to read", Value: 16},
	},
	Action: func(c *cli.Context) error {
		addr := c.Int("address")
		if addr < 0 || addr >= eeprom.Capacity {
			return fmt.Errorf("address out of range: %d", addr)
		}
		dev, err := openDevice(c)
		if err != nil {
			return err
		}
		defer func() { _ = dev.Halt() }()
		data, err := dev.Read(uint32(addr), c.Int("length"))
		if err != nil {
			return fmt.Errorf("memory read error: %w", err)
		}
		fmt.Println(hex.Dump(data))
		return nil
	},
}

var MemoryWriteCmd = &cli.Command{
	Name:  "write",
	Usage: "write SPI EEPROM memory",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "bus", Usage: "SPI bus name", Value: "spi"},
		&cli.IntFlag{Name: "address", Usage: "memory address to write", Required: true},
		&cli.StringFlag{Name: "data", Usage: "hex bytes to write (e.g. '01FF23')", Required: true},
		&cli.BoolFlag{Name: "verify", Usage: "read the range back after writing", Value: true},
	},
	Action: func(c *cli.Context) error {
		addr := c.Int("address")
		if addr < 0 || addr >= eeprom.Capacity {
			return fmt.Errorf("address out of range: %d", addr)
		}
		data, err := hex.DecodeString(strings.TrimPrefix(c.String("data"), "0x"))
		if err != nil {
			return fmt.Errorf("invalid data hex string: %w", err)
		}
		dev, err := openDevice(c)
		if err != nil {
			return err
		}
		defer func() { _ = dev.Halt() }()
		if c.Bool("verify") {
			err = dev.WriteVerify(uint32(addr), data)
		} else {
			err = dev.Write(uint32(addr), data)
		}
		if err != nil {
			return fmt.Errorf("memory write error: %w", err)
		}
		fmt.Printf("wrote %d bytes at %#05X: % X\n", len(data), addr, data)
		return nil
	},
}

var MemoryCmd = &cli.Command{
	Name:    "memory",
	Aliases: []string{"mem"},
	Usage:   "SPI memory device operations",
	Subcommands: []*cli.Command{
		MemoryReadCmd,
		MemoryWriteCmd,
	},
}
