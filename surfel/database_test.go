package surfel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestBlockResidency(t *testing.T) {
	logger := golog.NewTestLogger(t)
	db := NewDatabase(logger)

	b := NewBlockFromPositions(linePositions(10, r3.Vector{Y: 1}))
	test.That(t, b.IsResident(), test.ShouldBeTrue)
	test.That(t, b.DatabaseIndex(), test.ShouldEqual, -1)

	db.InsertBlock(b)
	test.That(t, b.Database(), test.ShouldEqual, db)
	test.That(t, b.ReadCount(), test.ShouldEqual, 1)
	test.That(t, b.IsResident(), test.ShouldBeTrue)
	test.That(t, db.NSurfels(), test.ShouldEqual, int64(10))
	test.That(t, db.ResidentSurfels(), test.ShouldEqual, int64(10))

	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	test.That(t, b.ReadCount(), test.ShouldEqual, 0)
	test.That(t, b.IsResident(), test.ShouldBeFalse)
	test.That(t, b.surfels, test.ShouldBeNil)
	test.That(t, b.IsDirty(), test.ShouldBeFalse)
	test.That(t, db.ResidentSurfels(), test.ShouldEqual, int64(0))

	// cached properties stay available without paging in
	test.That(t, b.BBox().Min, test.ShouldResemble, r3.Vector{Y: 1})
	test.That(t, b.BBox().Max, test.ShouldResemble, r3.Vector{X: 9, Y: 1})
	test.That(t, b.IsResident(), test.ShouldBeFalse)

	test.That(t, db.ReadBlock(b), test.ShouldBeNil)
	test.That(t, b.IsResident(), test.ShouldBeTrue)
	for i := 0; i < b.NSurfels(); i++ {
		test.That(t, b.SurfelPosition(i), test.ShouldResemble, r3.Vector{X: float64(i), Y: 1})
		test.That(t, b.Surfel(i).IsActive(), test.ShouldBeTrue)
	}
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	test.That(t, b.ReadCount(), test.ShouldEqual, 0)
	test.That(t, b.surfels, test.ShouldBeNil)

	test.That(t, func() { b.Surfel(0) }, test.ShouldPanic)
	test.That(t, func() { _ = db.ReleaseBlock(b) }, test.ShouldPanic)
}

func TestEmptyBlock(t *testing.T) {
	b := NewBlock(nil, r3.Vector{}, 0)
	test.That(t, b.NSurfels(), test.ShouldEqual, 0)
	test.That(t, b.Resolution(), test.ShouldEqual, 0)
	test.That(t, b.AverageRadius(), test.ShouldEqual, 0)
	test.That(t, b.BBox().IsEmpty(), test.ShouldBeTrue)
	test.That(t, b.TimestampRange().IsEmpty(), test.ShouldBeTrue)

	db := NewDatabase(golog.NewTestLogger(t))
	db.InsertBlock(b)
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	test.That(t, db.ReadBlock(b), test.ShouldBeNil)
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	test.That(t, db.BBox().IsEmpty(), test.ShouldBeTrue)
}

func TestInsertBlockTwicePanics(t *testing.T) {
	logger := golog.NewTestLogger(t)
	db := NewDatabase(logger)
	b := NewBlockFromPositions(linePositions(3, r3.Vector{}))
	db.InsertBlock(b)
	test.That(t, func() { db.InsertBlock(b) }, test.ShouldPanic)
	test.That(t, func() { NewDatabase(logger).InsertBlock(b) }, test.ShouldPanic)
	test.That(t, db.NBlocks(), test.ShouldEqual, 1)
}

func TestDirtyBlockWrittenOnRelease(t *testing.T) {
	db := NewDatabase(golog.NewTestLogger(t))
	b := NewBlockFromPositions(linePositions(4, r3.Vector{}))
	db.InsertBlock(b)
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)

	test.That(t, db.ReadBlock(b), test.ShouldBeNil)
	b.SetSurfelColor(2, [3]uint8{10, 20, 30})
	b.SetSurfelPosition(3, r3.Vector{X: 3, Z: 5})
	b.SetSurfelMark(1, true)
	test.That(t, b.IsDirty(), test.ShouldBeTrue)
	test.That(t, db.BBox().Max.Z, test.ShouldEqual, 5)
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	test.That(t, b.IsDirty(), test.ShouldBeFalse)

	test.That(t, db.ReadBlock(b), test.ShouldBeNil)
	test.That(t, b.Surfel(2).Color, test.ShouldResemble, [3]uint8{10, 20, 30})
	test.That(t, b.SurfelPosition(3), test.ShouldResemble, r3.Vector{X: 3, Z: 5})
	// marks are transient
	test.That(t, b.Surfel(1).IsMarked(), test.ShouldBeFalse)
	test.That(t, b.BBox().Max.Z, test.ShouldEqual, 5)
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
}

func TestLeaseBalance(t *testing.T) {
	db := NewDatabase(golog.NewTestLogger(t))
	b := NewBlockFromPositions(gridPositions(4, 4, 0))
	db.InsertBlock(b)
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)

	set := NewPointSet()
	test.That(t, set.InsertPoints(b), test.ShouldBeNil)
	test.That(t, set.NPoints(), test.ShouldEqual, 16)
	test.That(t, b.ReadCount(), test.ShouldEqual, 16)

	test.That(t, set.RemovePointAt(0), test.ShouldBeNil)
	test.That(t, b.ReadCount(), test.ShouldEqual, 15)

	p, err := NewPoint(b, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.ReadCount(), test.ShouldEqual, 16)
	test.That(t, p.Release(), test.ShouldBeNil)

	test.That(t, set.Empty(), test.ShouldBeNil)
	test.That(t, b.ReadCount(), test.ShouldEqual, 0)
	test.That(t, b.IsResident(), test.ShouldBeFalse)
}

func TestRemoveBlock(t *testing.T) {
	db := NewDatabase(golog.NewTestLogger(t))
	b1 := NewBlockFromPositions(linePositions(3, r3.Vector{}))
	b2 := NewBlockFromPositions(linePositions(5, r3.Vector{Y: 1}))
	b3 := NewBlockFromPositions(linePositions(7, r3.Vector{Y: 2}))
	for _, b := range []*Block{b1, b2, b3} {
		db.InsertBlock(b)
		test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	}

	test.That(t, db.RemoveBlock(b1), test.ShouldBeNil)
	test.That(t, db.NBlocks(), test.ShouldEqual, 2)
	test.That(t, db.NSurfels(), test.ShouldEqual, int64(12))
	test.That(t, db.Block(0), test.ShouldEqual, b3)
	test.That(t, b3.DatabaseIndex(), test.ShouldEqual, 0)
	test.That(t, b1.Database(), test.ShouldBeNil)
	test.That(t, b1.IsResident(), test.ShouldBeTrue)
	test.That(t, b1.SurfelPosition(2), test.ShouldResemble, r3.Vector{X: 2})

	test.That(t, db.ReadBlock(b2), test.ShouldBeNil)
	test.That(t, func() { _ = db.RemoveBlock(b2) }, test.ShouldPanic)
	test.That(t, db.ReleaseBlock(b2), test.ShouldBeNil)
}

func TestRemoveAndDeleteBlock(t *testing.T) {
	db := NewDatabase(golog.NewTestLogger(t))
	tree := NewTree(db)
	b1 := NewBlockFromPositions(linePositions(3, r3.Vector{}))
	b2 := NewBlockFromPositions(linePositions(4, r3.Vector{Y: 1}))
	db.InsertBlock(b1)
	db.InsertBlock(b2)
	tree.Root().InsertBlock(b1)
	test.That(t, db.ReleaseBlock(b2), test.ShouldBeNil)

	// b1 still leased: deletion is deferred to the last release
	test.That(t, db.RemoveAndDeleteBlock(b1), test.ShouldBeNil)
	test.That(t, b1.IsDeletePending(), test.ShouldBeTrue)
	test.That(t, b1.Node(), test.ShouldBeNil)
	test.That(t, tree.Root().NBlocks(), test.ShouldEqual, 0)
	test.That(t, db.NBlocks(), test.ShouldEqual, 2)
	test.That(t, db.ReleaseBlock(b1), test.ShouldBeNil)
	test.That(t, db.NBlocks(), test.ShouldEqual, 1)
	test.That(t, b1.Database(), test.ShouldBeNil)

	// PurgeDeletedBlocks drops leases still outstanding
	p, err := NewPoint(b2, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, db.RemoveAndDeleteBlock(b2), test.ShouldBeNil)
	test.That(t, db.NBlocks(), test.ShouldEqual, 1)
	n, err := db.PurgeDeletedBlocks()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n, test.ShouldEqual, 1)
	test.That(t, db.NBlocks(), test.ShouldEqual, 0)
	test.That(t, db.NSurfels(), test.ShouldEqual, int64(0))
	test.That(t, db.ResidentSurfels(), test.ShouldEqual, int64(0))
	test.That(t, p.Release(), test.ShouldBeNil)
}

func TestInsertSubsetBlocks(t *testing.T) {
	db := NewDatabase(golog.NewTestLogger(t))
	b := NewBlockFromPositions(linePositions(10, r3.Vector{}))
	db.InsertBlock(b)
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)

	b1, b2, err := db.InsertSubsetBlocks(b, []int{0, 1, 2, 3}, []int{4, 5, 6, 7, 8, 9})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, db.NBlocks(), test.ShouldEqual, 3)
	test.That(t, b1.NSurfels(), test.ShouldEqual, 4)
	test.That(t, b2.NSurfels(), test.ShouldEqual, 6)
	test.That(t, b1.ReadCount(), test.ShouldEqual, 0)
	test.That(t, b2.ReadCount(), test.ShouldEqual, 0)
	test.That(t, b.ReadCount(), test.ShouldEqual, 0)
	test.That(t, b1.BBox().Max, test.ShouldResemble, r3.Vector{X: 3})
	test.That(t, b2.BBox().Min, test.ShouldResemble, r3.Vector{X: 4})

	s1, s2, err := db.InsertSubsetBlocks(b, nil, []int{0, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s1, test.ShouldBeNil)
	test.That(t, s2, test.ShouldEqual, b)
	test.That(t, db.NBlocks(), test.ShouldEqual, 3)
}

func TestDatabaseFileRoundTrip(t *testing.T) {
	logger := golog.NewTestLogger(t)
	filename := filepath.Join(t.TempDir(), "test.ssb")

	db := NewDatabase(logger)
	b1 := NewBlockFromPositions(gridPositions(3, 3, 1))
	b2 := NewBlockFromPositions(linePositions(5, r3.Vector{Y: 10}))
	db.InsertBlock(b1)
	db.InsertBlock(b2)
	b2.SetSurfelIdentifier(4, 77)
	b2.SetSurfelTimestamp(0, 12.5)
	test.That(t, db.ReleaseBlock(b1), test.ShouldBeNil)

	test.That(t, db.OpenFile(filename, "w"), test.ShouldBeNil)
	test.That(t, db.IsOpen(), test.ShouldBeTrue)
	test.That(t, db.Filename(), test.ShouldEqual, filename)
	test.That(t, db.ReleaseBlock(b2), test.ShouldBeNil)
	test.That(t, db.CloseFile(), test.ShouldBeNil)
	test.That(t, db.IsOpen(), test.ShouldBeFalse)

	other := NewDatabase(logger)
	test.That(t, other.OpenFile(filename, "r"), test.ShouldBeNil)
	defer func() {
		test.That(t, other.CloseFile(), test.ShouldBeNil)
	}()
	test.That(t, other.NBlocks(), test.ShouldEqual, 2)
	test.That(t, other.NSurfels(), test.ShouldEqual, int64(14))
	test.That(t, other.BBox(), test.ShouldResemble, db.BBox())
	test.That(t, other.MaxIdentifier(), test.ShouldEqual, uint32(77))
	test.That(t, other.TimestampRange().Max, test.ShouldEqual, 12.5)

	r1, r2 := other.Block(0), other.Block(1)
	test.That(t, r1.IsResident(), test.ShouldBeFalse)
	test.That(t, r1.BBox(), test.ShouldResemble, b1.BBox())
	test.That(t, r2.MaxIdentifier(), test.ShouldEqual, uint32(77))

	test.That(t, other.ReadBlock(r1), test.ShouldBeNil)
	test.That(t, other.ReadBlock(r2), test.ShouldBeNil)
	test.That(t, r1.SurfelPosition(4), test.ShouldResemble, r3.Vector{X: 1, Y: 1, Z: 1})
	test.That(t, r2.SurfelPosition(2), test.ShouldResemble, r3.Vector{X: 2, Y: 10})
	test.That(t, r2.Surfel(4).Identifier, test.ShouldEqual, uint32(77))
	test.That(t, r2.SurfelTimestamp(0), test.ShouldEqual, 12.5)

	// read-only databases refuse to write back changes and keep the lease
	r2.SetSurfelColor(0, [3]uint8{1, 2, 3})
	test.That(t, other.ReleaseBlock(r2), test.ShouldNotBeNil)
	test.That(t, r2.ReadCount(), test.ShouldEqual, 1)
	r2.dirty = false
	test.That(t, other.ReleaseBlock(r2), test.ShouldBeNil)
	test.That(t, other.ReleaseBlock(r1), test.ShouldBeNil)
}

func TestDatabaseFileAppend(t *testing.T) {
	logger := golog.NewTestLogger(t)
	filename := filepath.Join(t.TempDir(), "append.ssb")

	db := NewDatabase(logger)
	test.That(t, db.OpenFile(filename, "w"), test.ShouldBeNil)
	b := NewBlockFromPositions(linePositions(3, r3.Vector{}))
	db.InsertBlock(b)
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	test.That(t, db.CloseFile(), test.ShouldBeNil)

	db = NewDatabase(logger)
	test.That(t, db.OpenFile(filename, "a"), test.ShouldBeNil)
	b = db.Block(0)
	test.That(t, db.ReadBlock(b), test.ShouldBeNil)
	b.SetSurfelColor(1, [3]uint8{9, 9, 9})
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	grown := NewBlockFromPositions(linePositions(20, r3.Vector{Z: 2}))
	db.InsertBlock(grown)
	test.That(t, db.ReleaseBlock(grown), test.ShouldBeNil)
	test.That(t, db.CloseFile(), test.ShouldBeNil)

	db = NewDatabase(logger)
	test.That(t, db.OpenFile(filename, "r"), test.ShouldBeNil)
	test.That(t, db.NBlocks(), test.ShouldEqual, 2)
	test.That(t, db.NSurfels(), test.ShouldEqual, int64(23))
	b = db.Block(0)
	test.That(t, db.ReadBlock(b), test.ShouldBeNil)
	test.That(t, b.Surfel(1).Color, test.ShouldResemble, [3]uint8{9, 9, 9})
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	b = db.Block(1)
	test.That(t, db.ReadBlock(b), test.ShouldBeNil)
	test.That(t, b.SurfelPosition(19), test.ShouldResemble, r3.Vector{X: 19, Z: 2})
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	test.That(t, db.CloseFile(), test.ShouldBeNil)
}

func TestDatabaseFileErrors(t *testing.T) {
	logger := golog.NewTestLogger(t)
	dir := t.TempDir()

	db := NewDatabase(logger)
	test.That(t, db.OpenFile(filepath.Join(dir, "missing.ssb"), "r"), test.ShouldNotBeNil)
	test.That(t, db.OpenFile(filepath.Join(dir, "x.ssb"), "q"), test.ShouldNotBeNil)
	test.That(t, db.IsOpen(), test.ShouldBeFalse)

	garbage := filepath.Join(dir, "garbage.ssb")
	test.That(t, os.WriteFile(garbage, make([]byte, 2*fileHeaderSize), 0o600), test.ShouldBeNil)
	err := db.OpenFile(garbage, "r")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "incorrect header")
	test.That(t, db.IsOpen(), test.ShouldBeFalse)

	db.InsertBlock(NewBlockFromPositions(linePositions(2, r3.Vector{})))
	test.That(t, db.OpenFile(garbage, "r"), test.ShouldNotBeNil)
}

func TestClosedDatabaseCannotPageIn(t *testing.T) {
	logger := golog.NewTestLogger(t)
	filename := filepath.Join(t.TempDir(), "closed.ssb")

	db := NewDatabase(logger)
	test.That(t, db.OpenFile(filename, "w"), test.ShouldBeNil)
	b := NewBlockFromPositions(linePositions(3, r3.Vector{}))
	db.InsertBlock(b)
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	test.That(t, db.CloseFile(), test.ShouldBeNil)

	test.That(t, db.ReadBlock(b), test.ShouldNotBeNil)
	test.That(t, b.ReadCount(), test.ShouldEqual, 0)
}

func TestReadOnlyWriteFailureIsLogged(t *testing.T) {
	logger, logs := golog.NewObservedTestLogger(t)
	filename := filepath.Join(t.TempDir(), "logged.ssb")

	db := NewDatabase(logger)
	b := NewBlockFromPositions(linePositions(3, r3.Vector{}))
	db.InsertBlock(b)
	test.That(t, db.OpenFile(filename, "w"), test.ShouldBeNil)
	test.That(t, db.ReleaseBlock(b), test.ShouldBeNil)
	test.That(t, db.CloseFile(), test.ShouldBeNil)
	test.That(t, logs.FilterMessageSnippet("failed").Len(), test.ShouldEqual, 0)

	ro := NewDatabase(logger)
	test.That(t, ro.OpenFile(filename, "r"), test.ShouldBeNil)
	defer func() {
		test.That(t, ro.CloseFile(), test.ShouldBeNil)
	}()
	rb := ro.Block(0)
	test.That(t, ro.ReadBlock(rb), test.ShouldBeNil)
	rb.SetSurfelColor(0, [3]uint8{9, 9, 9})
	test.That(t, ro.ReleaseBlock(rb), test.ShouldNotBeNil)
	test.That(t, logs.FilterMessageSnippet("failed to write block").Len(), test.ShouldEqual, 1)
}
