package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "apdu-script"
	app.Usage = "run APDU scripts against smart cards through PC/SC readers"
	app.Version = "0.1.0"
	app.Flags = globalFlags()
	app.Commands = []cli.Command{
		cli.Command{
			Name:    "readers",
			Aliases: []string{"ls"},
			Usage:   "list the attached readers",
			Action:  readersCommand,
		},
		cli.Command{
			Name:      "run",
			Usage:     "transmit a script to the card",
			ArgsUsage: "<script>",
			Flags:     append(scriptFlags(), transmitFlags()...),
			Action:    runCommand,
		},
		cli.Command{
			Name:      "control",
			Usage:     "send a script to the reader as escape commands",
			ArgsUsage: "<script>",
			Flags: append(scriptFlags(),
				cli.UintFlag{
					Name:  "control-code",
					Usage: "reader function number",
				},
			),
			Action: controlCommand,
		},
		cli.Command{
			Name:  "monitor",
			Usage: "report card insertion and removal",
			Flags: []cli.Flag{
				cli.StringSliceFlag{
					Name:  "reader, r",
					Usage: "reader name or index to watch (default: all)",
				},
			},
			Action: monitorCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", app.Name, err)
		os.Exit(1)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "TOML configuration file",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "diagnostic log level (debug, info, warn, error)",
		},
	}
}

func scriptFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "reader, r", Usage: "reader name or index"},
		cli.StringFlag{Name: "log-dir", Usage: "directory of the run log files"},
		cli.BoolFlag{Name: "verify", Usage: "compare responses with the expected patterns"},
		cli.BoolFlag{Name: "stop-on-mismatch", Usage: "stop at the first unexpected response"},
		cli.BoolFlag{Name: "describe-tlv", Usage: "dump BER-TLV response bodies"},
		cli.StringFlag{Name: "data-encoding", Usage: "encoding of the collected response data (tis-620, utf-8, raw, ...)"},
		cli.BoolFlag{Name: "open-report", Usage: "open the report URL in a browser"},
	}
}

func transmitFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "protocol, p", Usage: "T=0, T=1 or *"},
		cli.BoolFlag{Name: "t0-get-response", Usage: "resolve 61XX and 6CXX on T=0"},
		cli.BoolFlag{Name: "t1-get-response", Usage: "resolve 61XX on T=1"},
		cli.BoolFlag{Name: "t1-strip-le", Usage: "remove Le from case 4 commands on T=1"},
	}
}
