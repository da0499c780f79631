package surfel

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/be2rlab/OpenSemanticMapping-sub001/spatial"
)

const (
	fileMagic        = "R3SurfelDatabase"
	fileMajorVersion = 6
	fileMinorVersion = 0

	blockFlagDeletePending uint32 = 1 << 16
)

// fileHeader is the fixed-size record at the start of an .ssb file.
type fileHeader struct {
	Magic          [32]byte
	EndianTest     [2]uint32
	MajorVersion   uint32
	MinorVersion   uint32
	BlocksOffset   uint64
	BlocksCount    uint32
	NBlocks        uint32
	NSurfels       int64
	BBox           [6]float64
	TimestampRange [2]float64
	MaxIdentifier  uint32
	Reserved       [1004]byte
}

// blockRecord is one entry of the block table of an .ssb file.
type blockRecord struct {
	SurfelsOffset   uint64
	SurfelsCount    uint32
	NSurfels        int32
	PositionOrigin  [3]float64
	BBox            [6]float64
	Resolution      float64
	Flags           uint32
	TimestampOrigin float64
	TimestampRange  [2]float64
	MaxIdentifier   uint32
	MinIdentifier   uint32
	Reserved        [32]byte
}

var (
	fileHeaderSize  = uint64(binary.Size(fileHeader{}))
	blockRecordSize = binary.Size(blockRecord{})
)

func boxToArray(b spatial.Box) [6]float64 {
	return [6]float64{b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z}
}

func boxFromArray(a [6]float64) spatial.Box {
	return spatial.Box{
		Min: r3.Vector{X: a[0], Y: a[1], Z: a[2]},
		Max: r3.Vector{X: a[3], Y: a[4], Z: a[5]},
	}
}

// IsOpen reports whether the database is attached to a file.
func (d *Database) IsOpen() bool {
	return d.filename != ""
}

// Filename returns the name of the attached file, empty when none.
func (d *Database) Filename() string {
	return d.filename
}

// OpenFile attaches the database to an .ssb file. Mode "w" creates or
// truncates the file and moves every block already in the database into it.
// Modes "r" (read only) and "a" (read and write) load the block table of an
// existing file into an empty database; surfels are paged in on demand.
func (d *Database) OpenFile(filename, mode string) error {
	if d.IsOpen() {
		return errors.Errorf("database already open on %s", d.filename)
	}
	switch mode {
	case "w":
		//nolint:gosec
		f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return errors.Wrapf(err, "cannot create surfel database %s", filename)
		}
		if mem, ok := d.store.(*memStore); ok && len(mem.buf) > 0 {
			if _, err := f.WriteAt(mem.buf, 0); err != nil {
				return multierr.Combine(errors.Wrapf(err, "cannot write surfel database %s", filename), f.Close())
			}
		}
		d.store = fileStore{f}
		d.filename = filename
		d.mode = mode
		return d.SyncFile()
	case "r", "a":
		if len(d.blocks) > 0 {
			return errors.Errorf("cannot read %s into a database that already has %d blocks", filename, len(d.blocks))
		}
		flag := os.O_RDONLY
		if mode == "a" {
			flag = os.O_RDWR
		}
		//nolint:gosec
		f, err := os.OpenFile(filename, flag, 0)
		if err != nil {
			return errors.Wrapf(err, "cannot open surfel database %s", filename)
		}
		d.store = fileStore{f}
		d.filename = filename
		d.mode = mode
		if err := d.readFile(); err != nil {
			d.store = &memStore{}
			d.filename = ""
			d.mode = ""
			d.blocks = nil
			return multierr.Combine(err, f.Close())
		}
		d.logger.Debugw("opened surfel database", "file", filename, "blocks", len(d.blocks), "surfels", d.nsurfels)
		return nil
	default:
		return errors.Errorf("unknown surfel database access mode %q", mode)
	}
}

// SyncFile writes every dirty resident block, then the block table and the
// header. Read-only and memory-backed databases have nothing to sync.
func (d *Database) SyncFile() error {
	if !d.IsOpen() || d.mode == "r" {
		return nil
	}
	for _, b := range d.blocks {
		if err := d.SyncBlock(b); err != nil {
			return err
		}
	}

	var table bytes.Buffer
	for _, b := range d.blocks {
		rec := blockRecord{
			SurfelsOffset:   b.fileOffset,
			SurfelsCount:    b.fileCount,
			NSurfels:        int32(b.nsurfels),
			PositionOrigin:  [3]float64{b.positionOrigin.X, b.positionOrigin.Y, b.positionOrigin.Z},
			BBox:            boxToArray(b.BBox()),
			Resolution:      b.Resolution(),
			TimestampOrigin: b.timestampOrigin,
			MaxIdentifier:   b.MaxIdentifier(),
			MinIdentifier:   b.MinIdentifier(),
		}
		tr := b.TimestampRange()
		rec.TimestampRange = [2]float64{tr.Min, tr.Max}
		b.updateProperties(flagsUpToDate)
		rec.Flags = uint32(b.summary)
		if b.deletePending {
			rec.Flags |= blockFlagDeletePending
		}
		if err := binary.Write(&table, binary.LittleEndian, &rec); err != nil {
			return err
		}
	}
	blocksOffset := d.dataEnd
	if _, err := d.store.WriteAt(table.Bytes(), int64(blocksOffset)); err != nil {
		return errors.Wrapf(err, "cannot write block table of %s", d.filename)
	}

	header := fileHeader{
		EndianTest:     [2]uint32{1, 1},
		MajorVersion:   fileMajorVersion,
		MinorVersion:   fileMinorVersion,
		BlocksOffset:   blocksOffset,
		BlocksCount:    uint32(len(d.blocks)),
		NBlocks:        uint32(len(d.blocks)),
		NSurfels:       d.nsurfels,
		BBox:           boxToArray(d.bbox),
		TimestampRange: [2]float64{d.timestampRange.Min, d.timestampRange.Max},
		MaxIdentifier:  d.maxIdentifier,
	}
	copy(header.Magic[:], fileMagic)
	var hbuf bytes.Buffer
	if err := binary.Write(&hbuf, binary.LittleEndian, &header); err != nil {
		return err
	}
	if _, err := d.store.WriteAt(hbuf.Bytes(), 0); err != nil {
		return errors.Wrapf(err, "cannot write header of %s", d.filename)
	}
	return d.store.Truncate(int64(blocksOffset) + int64(table.Len()))
}

// CloseFile syncs and detaches the file. Blocks stay in the database but
// only resident ones can be read afterwards.
func (d *Database) CloseFile() (err error) {
	if !d.IsOpen() {
		return nil
	}
	defer func() {
		err = multierr.Combine(err, d.store.Close())
		d.store = nil
		d.filename = ""
		d.mode = ""
	}()
	return d.SyncFile()
}

func (d *Database) readFile() error {
	hbuf := make([]byte, fileHeaderSize)
	if _, err := d.store.ReadAt(hbuf, 0); err != nil {
		return errors.Wrapf(err, "cannot read header of %s", d.filename)
	}
	var header fileHeader
	if err := binary.Read(bytes.NewReader(hbuf), binary.LittleEndian, &header); err != nil {
		return err
	}
	if magic := string(bytes.TrimRight(header.Magic[:], "\x00")); magic != fileMagic {
		return errors.Errorf("incorrect header %q in surfel database %s", magic, d.filename)
	}
	if header.EndianTest != [2]uint32{1, 1} {
		return errors.Errorf("incorrect endian test %x in surfel database %s", header.EndianTest, d.filename)
	}
	if header.MajorVersion != fileMajorVersion || header.MinorVersion != fileMinorVersion {
		return errors.Errorf("unsupported version %d.%d in surfel database %s",
			header.MajorVersion, header.MinorVersion, d.filename)
	}

	table := make([]byte, int(header.NBlocks)*blockRecordSize)
	if _, err := d.store.ReadAt(table, int64(header.BlocksOffset)); err != nil {
		return errors.Wrapf(err, "cannot read block table of %s", d.filename)
	}
	records := make([]blockRecord, header.NBlocks)
	if err := binary.Read(bytes.NewReader(table), binary.LittleEndian, records); err != nil {
		return err
	}

	d.dataEnd = fileHeaderSize
	for i, rec := range records {
		b := &Block{
			nsurfels:        int(rec.NSurfels),
			timestampOrigin: rec.TimestampOrigin,
			bbox:            boxFromArray(rec.BBox),
			resolution:      rec.Resolution,
			timestampRange:  spatial.Interval{Min: rec.TimestampRange[0], Max: rec.TimestampRange[1]},
			elevationRange:  spatial.EmptyInterval(),
			minIdentifier:   rec.MinIdentifier,
			maxIdentifier:   rec.MaxIdentifier,
			summary:         uint16(rec.Flags),
			uptodate:        allUpToDate &^ elevationUpToDate,
			database:        d,
			databaseIndex:   i,
			fileOffset:      rec.SurfelsOffset,
			fileCount:       rec.SurfelsCount,
			deletePending:   rec.Flags&blockFlagDeletePending != 0,
		}
		b.positionOrigin = r3.Vector{X: rec.PositionOrigin[0], Y: rec.PositionOrigin[1], Z: rec.PositionOrigin[2]}
		if end := rec.SurfelsOffset + uint64(rec.SurfelsCount)*uint64(surfelRecordSize); rec.SurfelsOffset > 0 && end > d.dataEnd {
			d.dataEnd = end
		}
		d.blocks = append(d.blocks, b)
	}

	d.nsurfels = header.NSurfels
	d.bbox = boxFromArray(header.BBox)
	d.timestampRange = spatial.Interval{Min: header.TimestampRange[0], Max: header.TimestampRange[1]}
	d.maxIdentifier = header.MaxIdentifier
	return nil
}
