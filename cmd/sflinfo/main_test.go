package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"sflinfo"}, args...))
	return out.String(), err
}

func writeFile(t *testing.T, filename string, lines func(w *bufio.Writer)) {
	t.Helper()
	//nolint:gosec
	f, err := os.Create(filename)
	test.That(t, err, test.ShouldBeNil)
	w := bufio.NewWriter(f)
	lines(w)
	test.That(t, w.Flush(), test.ShouldBeNil)
	test.That(t, f.Close(), test.ShouldBeNil)
}

func countLines(t *testing.T, filename string) int {
	t.Helper()
	//nolint:gosec
	data, err := os.ReadFile(filename)
	test.That(t, err, test.ShouldBeNil)
	return bytes.Count(data, []byte("\n"))
}

func TestImportAndInfo(t *testing.T) {
	dir := t.TempDir()
	floor := filepath.Join(dir, "floor.xyz")
	writeFile(t, floor, func(w *bufio.Writer) {
		fmt.Fprintln(w, "# 20 by 20 floor")
		for j := 0; j < 20; j++ {
			for i := 0; i < 20; i++ {
				fmt.Fprintf(w, "%g %g 0\n", 0.2*float64(i), 0.2*float64(j))
			}
		}
	})
	pole := filepath.Join(dir, "pole.xyz")
	writeFile(t, pole, func(w *bufio.Writer) {
		for i := 0; i < 10; i++ {
			fmt.Fprintf(w, "%g 0 5\n", 20+0.2*float64(i))
		}
	})
	conf := filepath.Join(dir, "conf.json")
	writeFile(t, conf, func(w *bufio.Writer) {
		fmt.Fprint(w, `{"max_neighbors": 8, "min_points": 50}`)
	})

	database := filepath.Join(dir, "scene.ssb")
	tree := filepath.Join(dir, "scene.json")
	out, err := runApp(t, "import", "--tree", tree, database, floor, pole)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "wrote 410 surfels in 2 blocks")

	exported := filepath.Join(dir, "all.xyz")
	out, err = runApp(t,
		"--config", conf, "--tree", tree, "--blocks", "--xyz", exported,
		"--normals", "--support", "--planes", database)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "blocks:      2")
	test.That(t, out, test.ShouldContainSubstring, "surfels:     410")
	test.That(t, out, test.ShouldContainSubstring, "block surfels: mean 205 median 205 max 400")
	test.That(t, out, test.ShouldContainSubstring, "block 1: surfels 10")
	test.That(t, out, test.ShouldContainSubstring, "  floor: blocks 1 complexity 400")
	test.That(t, out, test.ShouldContainSubstring, "  pole: blocks 1 complexity 10")
	test.That(t, out, test.ShouldContainSubstring, "(400 points)")
	test.That(t, out, test.ShouldContainSubstring, "connected components: 2")
	test.That(t, out, test.ShouldContainSubstring, "planar grids: 1")
	test.That(t, out, test.ShouldContainSubstring, "points 400")
	test.That(t, countLines(t, exported), test.ShouldEqual, 410)
}

func TestInfoErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := runApp(t)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(t, filepath.Join(dir, "missing.ssb"))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(t, "import", filepath.Join(dir, "out.ssb"), filepath.Join(dir, "points.ply"))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = runApp(t, "import", filepath.Join(dir, "out.ssb"))
	test.That(t, err, test.ShouldNotBeNil)
}
