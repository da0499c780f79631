// Package main is the sflinfo command, which prints the contents of surfel
// databases and exports their points.
package main

import (
	"log"
	"os"

	"github.com/edaniels/golog"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	// Flags.
	flagDebug   = "debug"
	flagConfig  = "config"
	flagTree    = "tree"
	flagBlocks  = "blocks"
	flagXYZ     = "xyz"
	flagLAS     = "las"
	flagNormals = "normals"
	flagSupport = "support"
	flagPlanes  = "planes"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	var logger golog.Logger

	return &cli.App{
		Name:      "sflinfo",
		Usage:     "print statistics of a surfel database and export its points",
		ArgsUsage: "<database.ssb>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load segmentation settings from JSON `FILE`",
			},
			&cli.StringFlag{
				Name:  flagTree,
				Usage: "read the node hierarchy from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagBlocks,
				Usage: "print one line per block",
			},
			&cli.StringFlag{
				Name:  flagXYZ,
				Usage: "write all surfel positions to an ascii `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLAS,
				Usage: "write all surfels to a LAS `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagNormals,
				Usage: "estimate missing normals before exporting",
			},
			&cli.BoolFlag{
				Name:  flagSupport,
				Usage: "report the support plane",
			},
			&cli.BoolFlag{
				Name:  flagPlanes,
				Usage: "report planar regions",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = golog.NewDevelopmentLogger("sflinfo")
			} else {
				logger = zap.NewNop().Sugar()
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return infoAction(c, logger)
		},
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "create a surfel database from .xyz, .bin, .sfb or .las files",
				ArgsUsage: "<output.ssb> <input>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagTree,
						Usage: "also write a node per input file to `FILE`",
					},
				},
				Action: func(c *cli.Context) error {
					return importAction(c, logger)
				},
			},
		},
	}
}
