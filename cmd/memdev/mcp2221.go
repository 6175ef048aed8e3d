package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/memdev/adapter"
	"github.com/mklimuk/memdev/cmd/memdev/console"
)

var mcp2221Cmd = cli.Command{
	Name: "mcp2221",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221GpioCmd,
		&mcp2221ModeCmd,
		&mcp2221PinCmd,
	},
}

var mcp2221StatusCmd = cli.Command{
	Name: "status",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		status, err := a.Status(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(os.Stdout)
		err = enc.Encode(status)
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

var mcp2221GpioCmd = cli.Command{
	Name:  "gpio",
	Usage: "dump current GPIO pin modes and values",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		values, err := a.ReadGPIO(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(os.Stdout)
		err = enc.Encode(values)
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}

var mcp2221ModeCmd = cli.Command{
	Name:  "mode",
	Usage: "switch a GPIO pin to plain input or output: mode <pin> <in|out>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		pin, err := strconv.Atoi(c.Args().Get(0))
		if err != nil || pin < 0 || pin > 3 {
			return console.Exit(1, "invalid pin: %s", c.Args().Get(0))
		}
		var mode adapter.GPIOMode
		switch c.Args().Get(1) {
		case "in":
			mode = adapter.GPIOModeIn
		case "out":
			mode = adapter.GPIOModeOut
		default:
			return console.Exit(1, "invalid mode: %s", c.Args().Get(1))
		}
		a := adapter.NewMCP2221()
		ctx := context.Background()
		params, err := a.GetGPIOParameters(ctx)
		if err != nil {
			return console.Exit(1, "could not read GPIO parameters: %s", console.Red(err))
		}
		switch pin {
		case 0:
			params.GPIO0Mode, params.GPIO0Designation = mode, adapter.GPIOOperation
		case 1:
			params.GPIO1Mode, params.GPIO1Designation = mode, adapter.GPIOOperation
		case 2:
			params.GPIO2Mode, params.GPIO2Designation = mode, adapter.GPIOOperation
		case 3:
			params.GPIO3Mode, params.GPIO3Designation = mode, adapter.GPIOOperation
		}
		if err := a.SetGPIOParameters(ctx, params); err != nil {
			return console.Exit(1, "could not write GPIO parameters: %s", console.Red(err))
		}
		fmt.Printf("GP%d set to %s\n", pin, mode)
		return nil
	},
}

// mcp2221PinCmd drives an adapter GPIO, e.g. a write-protect line wired
// straight to the bridge.
var mcp2221PinCmd = cli.Command{
	Name:  "pin",
	Usage: "drive a GPIO output pin: pin <pin> <0|1>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		pin, err := strconv.Atoi(c.Args().Get(0))
		if err != nil || pin < 0 || pin > 3 {
			return console.Exit(1, "invalid pin: %s", c.Args().Get(0))
		}
		level := c.Args().Get(1) != "0"
		a := adapter.NewMCP2221()
		ctx := context.Background()
		if err := adapter.NewPin(a, pin).Set(ctx, level); err != nil {
			return console.Exit(1, "could not drive pin: %s", console.Red(err))
		}
		fmt.Printf("GP%d set to %v\n", pin, level)
		return nil
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name: "release",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221()
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))
		status, err := a.ReleaseBus(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		enc := yaml.NewEncoder(os.Stdout)
		err = enc.Encode(status)
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		return nil
	},
}
