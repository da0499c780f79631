package surfel

import (
	"bytes"
	"encoding/binary"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
)

// surfelRecordSize is the number of bytes one Surfel occupies in storage.
var surfelRecordSize = binary.Size(Surfel{})

// Database owns a collection of blocks and pages their surfels between
// memory and a backing store. A block's surfels are resident while its read
// count is positive: ReadBlock takes a lease and ReleaseBlock returns it,
// writing dirty surfels back before they are dropped.
type Database struct {
	logger golog.Logger

	blocks         []*Block
	nsurfels       int64
	bbox           spatial.Box
	timestampRange spatial.Interval
	maxIdentifier  uint32

	scene Scene
	tree  *Tree

	store    store
	filename string
	mode     string
	dataEnd  uint64
	resident int64
}

// NewDatabase returns an empty database backed by memory until OpenFile is called.
func NewDatabase(logger golog.Logger) *Database {
	return &Database{
		logger:         logger,
		bbox:           spatial.EmptyBox(),
		timestampRange: spatial.EmptyInterval(),
		store:          &memStore{},
		dataEnd:        fileHeaderSize,
	}
}

// NBlocks returns the number of blocks.
func (d *Database) NBlocks() int {
	return len(d.blocks)
}

// Block returns the i-th block.
func (d *Database) Block(i int) *Block {
	return d.blocks[i]
}

// Blocks returns the blocks in index order. The slice must not be modified.
func (d *Database) Blocks() []*Block {
	return d.blocks
}

// NSurfels returns the total number of surfels over all blocks.
func (d *Database) NSurfels() int64 {
	return d.nsurfels
}

// ResidentSurfels returns the number of surfels currently paged in.
func (d *Database) ResidentSurfels() int64 {
	return d.resident
}

// BBox returns a box containing every surfel inserted so far. It does not
// shrink when blocks are removed.
func (d *Database) BBox() spatial.Box {
	return d.bbox
}

// Centroid returns the center of the bounding box.
func (d *Database) Centroid() r3.Vector {
	return d.bbox.Centroid()
}

// TimestampRange returns the range of surfel timestamps inserted so far.
func (d *Database) TimestampRange() spatial.Interval {
	return d.timestampRange
}

// MaxIdentifier returns the largest surfel identifier seen.
func (d *Database) MaxIdentifier() uint32 {
	return d.maxIdentifier
}

// SetMaxIdentifier overrides the running maximum identifier.
func (d *Database) SetMaxIdentifier(id uint32) {
	d.maxIdentifier = id
	d.setDirty()
}

// Tree returns the tree built over this database, if any.
func (d *Database) Tree() *Tree {
	return d.tree
}

// SetScene sets the collaborator notified of every mutation.
func (d *Database) SetScene(scene Scene) {
	d.scene = scene
}

func (d *Database) setDirty() {
	if d.scene != nil {
		d.scene.SetDirty()
	}
}

// SetMarks sets or clears the mark of every surfel in resident blocks.
func (d *Database) SetMarks(mark bool) {
	for _, b := range d.blocks {
		b.SetMarks(mark)
	}
}

// InsertBlock adds a block to the database. If the block's surfels are in
// memory, the caller's reference becomes one lease that must be returned
// with ReleaseBlock.
func (d *Database) InsertBlock(b *Block) {
	if b.database != nil {
		panic(errors.Errorf("block already belongs to a database at index %d", b.databaseIndex))
	}
	bbox := b.BBox()
	timestampRange := b.TimestampRange()
	maxID := b.MaxIdentifier()

	b.database = d
	b.databaseIndex = len(d.blocks)
	b.fileOffset = 0
	b.fileCount = 0
	b.readCount = 0
	if b.surfels != nil {
		b.readCount = 1
		d.resident += int64(b.nsurfels)
	}
	d.blocks = append(d.blocks, b)

	d.bbox = d.bbox.Union(bbox)
	d.timestampRange = d.timestampRange.Union(timestampRange)
	if maxID > d.maxIdentifier {
		d.maxIdentifier = maxID
	}
	d.nsurfels += int64(b.nsurfels)
	b.SetDirty()
}

// RemoveBlock detaches a block from the database. The block must have no
// outstanding leases and no node. Its surfels are paged in first so it stays
// usable on its own. The database bounding box is not shrunk.
func (d *Database) RemoveBlock(b *Block) error {
	if b.database != d {
		panic(errors.New("block does not belong to this database"))
	}
	if b.readCount > 0 {
		panic(errors.Errorf("cannot remove block %d with %d outstanding leases", b.databaseIndex, b.readCount))
	}
	if b.node != nil {
		panic(errors.Errorf("cannot remove block %d still owned by node %q", b.databaseIndex, b.node.Name()))
	}
	if b.surfels == nil && b.nsurfels > 0 && !b.deletePending {
		surfels, err := d.loadSurfels(b)
		if err != nil {
			return err
		}
		b.surfels = surfels
	}

	tail := d.blocks[len(d.blocks)-1]
	d.blocks[b.databaseIndex] = tail
	tail.databaseIndex = b.databaseIndex
	d.blocks = d.blocks[:len(d.blocks)-1]

	b.database = nil
	b.databaseIndex = -1
	b.fileOffset = 0
	b.fileCount = 0
	b.dirty = false
	d.nsurfels -= int64(b.nsurfels)
	d.setDirty()
	return nil
}

// RemoveAndDeleteBlock removes a block from its node and the database. A
// block with outstanding leases is marked for deletion and removed when its
// last lease is released or at the next PurgeDeletedBlocks.
func (d *Database) RemoveAndDeleteBlock(b *Block) error {
	if b.node != nil {
		b.node.RemoveBlock(b)
	}
	b.deletePending = true
	if b.readCount > 0 {
		return nil
	}
	return d.RemoveBlock(b)
}

// PurgeDeletedBlocks removes every block marked for deletion, dropping any
// leases still held on them, and returns the number removed.
func (d *Database) PurgeDeletedBlocks() (int, error) {
	pending := lo.Filter(d.blocks, func(b *Block, _ int) bool { return b.deletePending })
	for _, b := range pending {
		if b.readCount > 0 {
			d.resident -= int64(b.nsurfels)
		}
		b.readCount = 0
		if err := d.RemoveBlock(b); err != nil {
			return 0, err
		}
	}
	return len(pending), nil
}

// InsertSubsetBlocks splits block into two new blocks holding the surfels at
// the given indices, inserts both and releases them. If either subset is empty
// no blocks are created and the original block is returned in its place. The
// caller decides what to do with the original block.
func (d *Database) InsertSubsetBlocks(b *Block, subset1, subset2 []int) (*Block, *Block, error) {
	if len(subset1)+len(subset2) > b.nsurfels {
		panic(errors.Errorf("subsets of %d surfels exceed block of %d", len(subset1)+len(subset2), b.nsurfels))
	}
	if len(subset1) == 0 {
		return nil, b, nil
	}
	if len(subset2) == 0 {
		return b, nil, nil
	}
	if err := d.ReadBlock(b); err != nil {
		return nil, nil, err
	}
	gather := func(subset []int) []Surfel {
		surfels := make([]Surfel, len(subset))
		for i, k := range subset {
			surfels[i] = *b.Surfel(k)
		}
		return surfels
	}
	block1 := NewBlock(gather(subset1), b.positionOrigin, b.timestampOrigin)
	block2 := NewBlock(gather(subset2), b.positionOrigin, b.timestampOrigin)
	if err := d.ReleaseBlock(b); err != nil {
		return nil, nil, err
	}

	d.InsertBlock(block1)
	d.InsertBlock(block2)
	if err := d.ReleaseBlock(block1); err != nil {
		return nil, nil, err
	}
	if err := d.ReleaseBlock(block2); err != nil {
		return nil, nil, err
	}
	return block1, block2, nil
}

// ReadBlock takes a lease on a block, paging its surfels in on first use.
func (d *Database) ReadBlock(b *Block) error {
	if b.database != d {
		panic(errors.New("block does not belong to this database"))
	}
	if b.readCount == 0 {
		if b.surfels == nil {
			surfels, err := d.loadSurfels(b)
			if err != nil {
				return err
			}
			b.surfels = surfels
		}
		d.resident += int64(b.nsurfels)
	}
	b.readCount++
	return nil
}

// retain takes another lease on a block already known to be resident.
func (d *Database) retain(b *Block) {
	if b.readCount <= 0 {
		panic(errors.Errorf("retain of block %d without a lease", b.databaseIndex))
	}
	b.readCount++
}

// ReleaseBlock returns a lease. When the last lease is returned, dirty surfels
// are written to the backing store and dropped from memory. If the write
// fails the lease is kept and the error returned.
func (d *Database) ReleaseBlock(b *Block) error {
	if b.database != d {
		panic(errors.New("block does not belong to this database"))
	}
	if b.readCount <= 0 {
		panic(errors.Errorf("release of block %d with no outstanding lease", b.databaseIndex))
	}
	if b.readCount == 1 {
		if !b.deletePending {
			if err := d.SyncBlock(b); err != nil {
				return err
			}
		}
		b.surfels = nil
		d.resident -= int64(b.nsurfels)
	}
	b.readCount--
	if b.readCount == 0 && b.deletePending {
		return d.RemoveBlock(b)
	}
	return nil
}

// IsBlockResident reports whether a block holds at least one lease.
func (d *Database) IsBlockResident(b *Block) bool {
	return b.database == d && b.readCount > 0
}

// SyncBlock writes a dirty resident block to the backing store.
func (d *Database) SyncBlock(b *Block) error {
	if !b.dirty || b.surfels == nil {
		return nil
	}
	if err := d.writeSurfels(b); err != nil {
		d.logger.Errorw("failed to write block", "index", b.databaseIndex, "surfels", b.nsurfels, "error", err)
		return err
	}
	b.dirty = false
	return nil
}

func (d *Database) loadSurfels(b *Block) ([]Surfel, error) {
	surfels := make([]Surfel, b.nsurfels)
	if b.nsurfels == 0 || b.fileOffset == 0 {
		return surfels, nil
	}
	if d.store == nil {
		return nil, errors.Errorf("cannot page in block %d: database file is closed", b.databaseIndex)
	}
	buf := make([]byte, b.nsurfels*surfelRecordSize)
	if _, err := d.store.ReadAt(buf, int64(b.fileOffset)); err != nil {
		d.logger.Errorw("failed to read block", "index", b.databaseIndex, "offset", b.fileOffset, "error", err)
		return nil, errors.Wrapf(err, "reading block %d", b.databaseIndex)
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, surfels); err != nil {
		return nil, errors.Wrapf(err, "decoding block %d", b.databaseIndex)
	}
	return surfels, nil
}

// writeSurfels stores a block's surfels in place when they fit the space
// previously allocated to it and at the end of the data otherwise.
func (d *Database) writeSurfels(b *Block) error {
	if b.nsurfels == 0 {
		return nil
	}
	if d.store == nil {
		return errors.Errorf("cannot write block %d: database file is closed", b.databaseIndex)
	}
	if d.mode == "r" {
		return errors.Errorf("cannot write block %d to read-only file %s", b.databaseIndex, d.filename)
	}
	var buf bytes.Buffer
	buf.Grow(b.nsurfels * surfelRecordSize)
	for i := range b.surfels {
		s := b.surfels[i]
		s.setFlag(FlagMarked, false)
		if err := binary.Write(&buf, binary.LittleEndian, &s); err != nil {
			return err
		}
	}

	offset := b.fileOffset
	if offset == 0 || uint32(b.nsurfels) > b.fileCount {
		offset = d.dataEnd
		b.fileCount = uint32(b.nsurfels)
		d.dataEnd += uint64(buf.Len())
	}
	if _, err := d.store.WriteAt(buf.Bytes(), int64(offset)); err != nil {
		return errors.Wrapf(err, "writing block %d", b.databaseIndex)
	}
	b.fileOffset = offset
	return nil
}
