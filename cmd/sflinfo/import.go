package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/be2rlab/OpenSemanticMapping-sub001/surfel"
)

func importAction(c *cli.Context, logger golog.Logger) (err error) {
	if c.NArg() < 2 {
		return errors.New("expected an output database and at least one input file")
	}
	output := c.Args().First()
	inputs := c.Args().Tail()

	db := surfel.NewDatabase(logger)
	tree := surfel.NewTree(db)
	for _, input := range inputs {
		b, err := surfel.ReadBlockFile(input, logger)
		if err != nil {
			return err
		}
		db.InsertBlock(b)
		name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		node := surfel.NewNode(name)
		tree.InsertNode(node, tree.Root())
		node.InsertBlock(b)
		logger.Debugw("imported block", "file", input, "surfels", b.NSurfels())
	}

	if err := db.OpenFile(output, "w"); err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, db.CloseFile())
	}()
	for _, b := range db.Blocks() {
		if b.ReadCount() > 0 {
			if err := db.ReleaseBlock(b); err != nil {
				return err
			}
		}
	}
	if path := c.String(flagTree); path != "" {
		if err := tree.WriteFile(path); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.App.Writer, "wrote %d surfels in %d blocks to %s\n", db.NSurfels(), db.NBlocks(), output)
	return nil
}
