package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/edaniels/golog"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/be2rlab/OpenSemanticMapping-sub001/segmentation"
	"github.com/be2rlab/OpenSemanticMapping-sub001/surfel"
)

// loadConfig reads segmentation settings from a JSON object on disk.
func loadConfig(filename string) (segmentation.Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(filename)
	if err != nil {
		return segmentation.Config{}, err
	}
	var attrs map[string]interface{}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return segmentation.Config{}, errors.Wrapf(err, "cannot parse %s", filename)
	}
	return segmentation.NewConfigFromAttributes(attrs)
}

func infoAction(c *cli.Context, logger golog.Logger) (err error) {
	if c.NArg() != 1 {
		return errors.New("expected exactly one database file")
	}
	conf := segmentation.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		if conf, err = loadConfig(path); err != nil {
			return err
		}
	}

	db := surfel.NewDatabase(logger)
	if err := db.OpenFile(c.Args().First(), "r"); err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, db.CloseFile())
	}()

	w := c.App.Writer
	printHeader(w, db)
	if err := printBlockStatistics(w, db); err != nil {
		return err
	}
	if c.Bool(flagBlocks) {
		printBlocks(w, db)
	}
	if path := c.String(flagTree); path != "" {
		tree, err := surfel.ReadTree(path, db)
		if err != nil {
			return err
		}
		printTree(w, tree)
	}

	if c.String(flagXYZ) == "" && c.String(flagLAS) == "" && !c.Bool(flagSupport) && !c.Bool(flagPlanes) {
		return nil
	}
	set, err := detachedPointSet(db)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(set.Empty)
	logger.Debugw("loaded points", "points", set.NPoints())

	if c.Bool(flagNormals) {
		set.UpdateNormals(conf.MaxNeighborDistance, conf.MaxNeighbors)
	}
	if path := c.String(flagXYZ); path != "" {
		if err := set.WriteXYZFile(path); err != nil {
			return err
		}
	}
	if path := c.String(flagLAS); path != "" {
		if err := set.WriteLASFile(path); err != nil {
			return err
		}
	}
	if c.Bool(flagSupport) {
		plane, npoints := segmentation.FitSupportPlane(set, conf.SupportAccuracy)
		fmt.Fprintf(w, "support plane: %g %g %g %g (%d points)\n",
			plane.Normal.X, plane.Normal.Y, plane.Normal.Z, plane.D, npoints)
	}
	if c.Bool(flagPlanes) {
		graph := surfel.NewPointGraph(set, conf.MaxNeighbors, conf.MaxNeighborDistance)
		components := segmentation.ConnectedComponents(graph, conf.MinComponentSize)
		fmt.Fprintf(w, "connected components: %d\n", len(components))
		grids, err := segmentation.PlanarGrids(graph, conf, logger)
		if err != nil {
			return err
		}
		printPlanarGrids(w, grids)
	}
	return nil
}

// detachedPointSet copies every surfel of the database into one standalone
// block, so the points can be modified without touching the database.
func detachedPointSet(db *surfel.Database) (*surfel.PointSet, error) {
	all := surfel.NewPointSet()
	for _, b := range db.Blocks() {
		if err := all.InsertPoints(b); err != nil {
			return nil, multierr.Combine(err, all.Empty())
		}
	}
	detached := surfel.NewBlockFromPointSet(all)
	if err := all.Empty(); err != nil {
		return nil, err
	}
	set := surfel.NewPointSet()
	if err := set.InsertPoints(detached); err != nil {
		return nil, err
	}
	return set, nil
}

func printHeader(w io.Writer, db *surfel.Database) {
	bbox := db.BBox()
	centroid := db.Centroid()
	fmt.Fprintf(w, "file:        %s\n", db.Filename())
	fmt.Fprintf(w, "blocks:      %d\n", db.NBlocks())
	fmt.Fprintf(w, "surfels:     %d\n", db.NSurfels())
	fmt.Fprintf(w, "bbox:        %s\n", bbox)
	fmt.Fprintf(w, "centroid:    %g %g %g\n", centroid.X, centroid.Y, centroid.Z)
	if tr := db.TimestampRange(); !tr.IsEmpty() {
		fmt.Fprintf(w, "timestamps:  %g %g\n", tr.Min, tr.Max)
	}
	fmt.Fprintf(w, "max id:      %d\n", db.MaxIdentifier())
}

func printBlockStatistics(w io.Writer, db *surfel.Database) error {
	if db.NBlocks() == 0 {
		return nil
	}
	var counts, resolutions stats.Float64Data
	for _, b := range db.Blocks() {
		counts = append(counts, float64(b.NSurfels()))
		resolutions = append(resolutions, b.Resolution())
	}
	for _, row := range []struct {
		name string
		data stats.Float64Data
	}{
		{"block surfels", counts},
		{"block resolution", resolutions},
	} {
		mean, err := row.data.Mean()
		if err != nil {
			return err
		}
		median, err := row.data.Median()
		if err != nil {
			return err
		}
		maximum, err := row.data.Max()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: mean %g median %g max %g\n", row.name, mean, median, maximum)
	}
	return nil
}

func printBlocks(w io.Writer, db *surfel.Database) {
	for i, b := range db.Blocks() {
		node := "-"
		if b.Node() != nil {
			node = b.Node().Name()
		}
		fmt.Fprintf(w, "block %d: surfels %d resolution %g node %s bbox %s\n",
			i, b.NSurfels(), b.Resolution(), node, b.BBox())
	}
}

func printTree(w io.Writer, tree *surfel.Tree) {
	tree.Walk(func(n *surfel.Node) bool {
		fmt.Fprintf(w, "%s%s: blocks %d complexity %d bbox %s\n",
			strings.Repeat("  ", n.TreeLevel()), n.Name(), n.NBlocks(), n.Complexity(), n.BBox())
		return true
	})
}

func printPlanarGrids(w io.Writer, grids []*segmentation.PlanarGrid) {
	fmt.Fprintf(w, "planar grids: %d\n", len(grids))
	for i, g := range grids {
		cols, rows := g.Size()
		fmt.Fprintf(w, "plane %d: normal %g %g %g d %g points %d area %g cells %dx%d",
			i, g.Plane.Normal.X, g.Plane.Normal.Y, g.Plane.Normal.Z, g.Plane.D, len(g.Points), g.Area(), cols, rows)
		if s, err := g.Statistics(); err == nil {
			fmt.Fprintf(w, " density mean %g median %g max %g", s.Mean, s.Median, s.Max)
		}
		fmt.Fprintln(w)
	}
}
