package surfel

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ReadBlockFile reads a block from a file, choosing the format from the
// extension: ".xyz" (ascii x y z lines), ".bin" (little endian float32
// triples), ".sfb" (surfel records) or ".las".
func ReadBlockFile(filename string, logger golog.Logger) (*Block, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xyz":
		return ReadXYZFile(filename)
	case ".bin":
		return ReadXYZBinaryFile(filename)
	case ".sfb":
		return ReadSurfelBinaryFile(filename)
	case ".las":
		return ReadLASFile(filename, logger)
	default:
		return nil, errors.Errorf("do not know how to read surfel file %q", filename)
	}
}

// WriteFile writes the block in the format named by the extension, as
// accepted by ReadBlockFile.
func (b *Block) WriteFile(filename string) error {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xyz":
		return b.WriteXYZFile(filename)
	case ".bin":
		return b.WriteXYZBinaryFile(filename)
	case ".sfb":
		return b.WriteSurfelBinaryFile(filename)
	case ".las":
		set := NewPointSet()
		if err := set.InsertPoints(b); err != nil {
			return err
		}
		return multierr.Combine(set.WriteLASFile(filename), set.Empty())
	default:
		return errors.Errorf("do not know how to write surfel file %q", filename)
	}
}

// withResident runs fn with the block's surfels paged in.
func (b *Block) withResident(fn func() error) error {
	if err := leaseBlock(b); err != nil {
		return err
	}
	return multierr.Combine(fn(), releaseBlock(b))
}

// ReadXYZFile reads one point per line, three whitespace separated
// coordinates each. Blank lines and lines starting with '#' are skipped.
func ReadXYZFile(filename string) (*Block, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var positions []r3.Vector
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 3 {
			return nil, errors.Errorf("%s:%d: expected 3 coordinates, got %d", filename, line, len(fields))
		}
		var xyz [3]float64
		for i := range xyz {
			if xyz[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
				return nil, errors.Wrapf(err, "%s:%d", filename, line)
			}
		}
		positions = append(positions, r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewBlockFromPositions(positions), nil
}

// WriteXYZFile writes the world position of every surfel as an "x y z" line.
func (b *Block) WriteXYZFile(filename string) (err error) {
	//nolint:gosec
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return b.withResident(func() error {
		w := bufio.NewWriter(f)
		for i := 0; i < b.nsurfels; i++ {
			p := b.SurfelPosition(i)
			if _, err := fmt.Fprintf(w, "%g %g %g\n", p.X, p.Y, p.Z); err != nil {
				return err
			}
		}
		return w.Flush()
	})
}

// ReadXYZBinaryFile reads little endian float32 x y z triples.
func ReadXYZBinaryFile(filename string) (*Block, error) {
	//nolint:gosec
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if len(data)%12 != 0 {
		return nil, errors.Errorf("%s: size %d is not a multiple of 12", filename, len(data))
	}
	positions := make([]r3.Vector, len(data)/12)
	for i := range positions {
		at := func(k int) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[12*i+4*k:])))
		}
		positions[i] = r3.Vector{X: at(0), Y: at(1), Z: at(2)}
	}
	return NewBlockFromPositions(positions), nil
}

// WriteXYZBinaryFile writes world positions as little endian float32 triples.
func (b *Block) WriteXYZBinaryFile(filename string) (err error) {
	//nolint:gosec
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return b.withResident(func() error {
		w := bufio.NewWriter(f)
		for i := 0; i < b.nsurfels; i++ {
			p := b.SurfelPosition(i)
			xyz := [3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
			if err := binary.Write(w, binary.LittleEndian, xyz); err != nil {
				return err
			}
		}
		return w.Flush()
	})
}

type surfelFileHeader struct {
	NSurfels        uint32
	PositionOrigin  [3]float64
	TimestampOrigin float64
}

// ReadSurfelBinaryFile reads a block written by WriteSurfelBinaryFile.
func ReadSurfelBinaryFile(filename string) (*Block, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	r := bufio.NewReader(f)
	var header surfelFileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, errors.Wrapf(err, "reading header of %s", filename)
	}
	surfels := make([]Surfel, header.NSurfels)
	if err := binary.Read(r, binary.LittleEndian, surfels); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, errors.Errorf("%s is truncated: expected %d surfels", filename, header.NSurfels)
		}
		return nil, err
	}
	origin := r3.Vector{X: header.PositionOrigin[0], Y: header.PositionOrigin[1], Z: header.PositionOrigin[2]}
	return NewBlock(surfels, origin, header.TimestampOrigin), nil
}

// WriteSurfelBinaryFile writes the block's origins and surfel records.
func (b *Block) WriteSurfelBinaryFile(filename string) (err error) {
	//nolint:gosec
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return b.withResident(func() error {
		w := bufio.NewWriter(f)
		header := surfelFileHeader{
			NSurfels:        uint32(b.nsurfels),
			PositionOrigin:  [3]float64{b.positionOrigin.X, b.positionOrigin.Y, b.positionOrigin.Z},
			TimestampOrigin: b.timestampOrigin,
		}
		if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, b.surfels); err != nil {
			return err
		}
		return w.Flush()
	})
}

// ReadLASFile reads the points of a LAS file into a block. Colors are read
// from point format 2 and intensities are kept as surfel attributes.
func ReadLASFile(filename string, logger golog.Logger) (*Block, error) {
	lf, err := lidario.NewLasFile(filename, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	positions := make([]r3.Vector, lf.Header.NumberPoints)
	colors := make([][3]uint8, lf.Header.NumberPoints)
	intensities := make([]uint16, lf.Header.NumberPoints)
	hasColor := false
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()
		positions[i] = r3.Vector{X: data.X, Y: data.Y, Z: data.Z}
		intensities[i] = data.Intensity
		if lf.Header.PointFormatID == 2 && p.RgbData() != nil {
			hasColor = true
			rgb := p.RgbData()
			colors[i] = [3]uint8{uint8(rgb.Red / 256), uint8(rgb.Green / 256), uint8(rgb.Blue / 256)}
		}
	}

	b := NewBlockFromPositions(positions)
	for i := range b.surfels {
		b.surfels[i].Attribute = uint32(intensities[i])
		if hasColor {
			b.surfels[i].Color = colors[i]
		}
	}
	logger.Debugw("read LAS file", "file", filename, "points", len(positions), "color", hasColor)
	return b, nil
}

// WriteLASFile writes the points of the set to a LAS file, in point format 2
// when any point has a color.
func (s *PointSet) WriteLASFile(filename string) (err error) {
	lf, err := lidario.NewLasFile(filename, "w")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, lf.Close())
	}()

	hasColor := false
	for _, p := range s.points {
		if p.Color() != [3]uint8{} {
			hasColor = true
			break
		}
	}
	pointFormatID := 0
	if hasColor {
		pointFormatID = 2
	}
	if err := lf.AddHeader(lidario.LasHeader{PointFormatID: byte(pointFormatID)}); err != nil {
		return err
	}

	for _, p := range s.points {
		pos := p.Position()
		pr0 := &lidario.PointRecord0{
			X: pos.X,
			Y: pos.Y,
			Z: pos.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			PointSourceID: 1,
			Intensity:     uint16(p.Attribute()),
		}
		var lp lidario.LasPointer = pr0
		if hasColor {
			c := p.Color()
			lp = &lidario.PointRecord2{
				PointRecord0: pr0,
				RGB: &lidario.RgbData{
					Red:   uint16(c[0]) * 256,
					Green: uint16(c[1]) * 256,
					Blue:  uint16(c[2]) * 256,
				},
			}
		}
		if err := lf.AddLasPoint(lp); err != nil {
			return err
		}
	}
	return nil
}
