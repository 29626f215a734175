/*
Copyright © 2018 the HydroMap authors.
This file is part of HydroMap.

HydroMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

HydroMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with HydroMap.  If not, see <http://www.gnu.org/licenses/>.
*/

package hydromap

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// FileFormat identifies the on-disk raster encoding.
type FileFormat int

const (
	// FormatBin is raw little-endian float32, row-major.
	FormatBin FileFormat = iota
	// FormatByteSwap is raw big-endian float32, row-major.
	FormatByteSwap
	// FormatNetCDF is a NetCDF file with a named variable.
	FormatNetCDF
)

// OutsideBasin is the mask sentinel marking inactive cells.
const OutsideBasin = 0

// GridMeta is the geometry shared by all raster inputs.
type GridMeta struct {
	NX, NY int
	DX, DY float64 // cell spacing (m)

	// Corner of the lower-left cell in projected coordinates.
	Corner geom.Point
}

// Validate rejects non-square cells, which would break the diagonal flow
// widths of the lateral routers.
func (g GridMeta) Validate() error {
	if g.NX <= 0 || g.NY <= 0 {
		return newError(CodeConfiguration, "grid is %d × %d", g.NX, g.NY)
	}
	if math.Abs(g.DX-g.DY) > 1e-9 {
		return newError(CodeGridNotSquare, "grid cells are %g × %g m; they must be square", g.DX, g.DY)
	}
	return nil
}

// CellArea returns the plan area of one cell (m²).
func (g GridMeta) CellArea() float64 { return g.DX * g.DY }

// Bounds returns the grid bounding box in projected coordinates.
func (g GridMeta) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: g.Corner.X, Y: g.Corner.Y},
		Max: geom.Point{X: g.Corner.X + float64(g.NX)*g.DX, Y: g.Corner.Y + float64(g.NY)*g.DY},
	}
}

// ReadFloatGrid reads an NY×NX row-major float raster in the given
// format. For FormatNetCDF, path must name a NetCDF file containing the
// variable varName; for the raw formats the file is read whole.
func ReadFloatGrid(path string, format FileFormat, meta GridMeta, varName string) (*sparse.DenseArray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(CodeIO, "opening grid %s: %v", path, err)
	}
	defer f.Close()

	switch format {
	case FormatBin, FormatByteSwap:
		return readRawGrid(f, format, meta, path)
	case FormatNetCDF:
		return readNetCDFGrid(f, meta, path, varName)
	}
	return nil, newError(CodeConfiguration, "unknown grid file format %d", format)
}

func readRawGrid(r io.Reader, format FileFormat, meta GridMeta, path string) (*sparse.DenseArray, error) {
	var order binary.ByteOrder = binary.LittleEndian
	if format == FormatByteSwap {
		order = binary.BigEndian
	}
	buf := make([]float32, meta.NX*meta.NY)
	if err := binary.Read(r, order, buf); err != nil {
		return nil, newError(CodeIO, "reading %d elements from %s: %v", len(buf), path, err)
	}
	data := sparse.ZerosDense(meta.NY, meta.NX)
	for i, v := range buf {
		data.Elements[i] = float64(v)
	}
	return data, nil
}

func readNetCDFGrid(f *os.File, meta GridMeta, path, varName string) (*sparse.DenseArray, error) {
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, newError(CodeIO, "opening NetCDF %s: %v", path, err)
	}
	dims := ff.Header.Lengths(varName)
	if len(dims) == 0 {
		return nil, newError(CodeIO, "variable %s not in NetCDF file %s", varName, path)
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	if n != meta.NX*meta.NY {
		return nil, newError(CodeIO, "variable %s in %s has %d elements, want %d",
			varName, path, n, meta.NX*meta.NY)
	}
	start, end := make([]int, len(dims)), make([]int, len(dims))
	copy(end, dims)
	r := ff.Reader(varName, start, end)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, newError(CodeIO, "reading NetCDF variable %s from %s: %v", varName, path, err)
	}
	data := sparse.ZerosDense(meta.NY, meta.NX)
	switch vals := buf.(type) {
	case []float32:
		for i, v := range vals {
			data.Elements[i] = float64(v)
		}
	case []float64:
		copy(data.Elements, vals)
	default:
		return nil, newError(CodeIO, "NetCDF variable %s in %s has unsupported type %T", varName, path, buf)
	}
	return data, nil
}

// ReadMask reads the 1-byte-per-cell basin mask; cells equal to
// OutsideBasin are inactive.
func ReadMask(path string, meta GridMeta) ([]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(CodeIO, "opening mask %s: %v", path, err)
	}
	defer f.Close()
	buf := make([]byte, meta.NX*meta.NY)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, newError(CodeIO, "reading %d mask bytes from %s: %v", len(buf), path, err)
	}
	mask := make([]bool, len(buf))
	for i, b := range buf {
		mask[i] = b != OutsideBasin
	}
	return mask, nil
}

// WriteFloatGrid writes a raster in the given raw format, or as a
// single-variable NetCDF file.
func WriteFloatGrid(path string, format FileFormat, data *sparse.DenseArray, varName, units string) error {
	f, err := os.Create(path)
	if err != nil {
		return newError(CodeIO, "creating %s: %v", path, err)
	}
	defer f.Close()

	switch format {
	case FormatBin, FormatByteSwap:
		var order binary.ByteOrder = binary.LittleEndian
		if format == FormatByteSwap {
			order = binary.BigEndian
		}
		buf := make([]float32, len(data.Elements))
		for i, v := range data.Elements {
			buf[i] = float32(v)
		}
		if err := binary.Write(f, order, buf); err != nil {
			return newError(CodeIO, "writing %s: %v", path, err)
		}
		return nil

	case FormatNetCDF:
		h := cdf.NewHeader([]string{"y", "x"}, []int{data.Shape[0], data.Shape[1]})
		h.AddVariable(varName, []string{"y", "x"}, []float32{0})
		h.AddAttribute(varName, "units", units)
		h.Define()
		ff, err := cdf.Create(f, h)
		if err != nil {
			return newError(CodeIO, "creating NetCDF %s: %v", path, err)
		}
		buf := make([]float32, len(data.Elements))
		for i, v := range data.Elements {
			buf[i] = float32(v)
		}
		end := ff.Header.Lengths(varName)
		start := make([]int, len(end))
		w := ff.Writer(varName, start, end)
		if _, err := w.Write(buf); err != nil {
			return newError(CodeIO, "writing NetCDF variable %s to %s: %v", varName, path, err)
		}
		return nil
	}
	return newError(CodeConfiguration, "unknown grid file format %d", format)
}

// Neighbor offsets for the 4- and 8-direction routing stencils. The
// order matches the flow-direction weight layout.
var (
	xNeighbor8 = [8]int{-1, 0, 1, 1, 1, 0, -1, -1}
	yNeighbor8 = [8]int{-1, -1, -1, 0, 1, 1, 1, 0}
	xNeighbor4 = [4]int{0, 1, 0, -1}
	yNeighbor4 = [4]int{-1, 0, 1, 0}
)

// NeighborOffsets returns the stencil for the configured number of flow
// directions.
func NeighborOffsets(ndirs int) (xOff, yOff []int, err error) {
	switch ndirs {
	case 4:
		return xNeighbor4[:], yNeighbor4[:], nil
	case 8:
		return xNeighbor8[:], yNeighbor8[:], nil
	}
	return nil, nil, newError(CodeConfiguration, "flow routing supports 4 or 8 directions, not %d", ndirs)
}

func (g GridMeta) String() string {
	return fmt.Sprintf("%d × %d cells at %g m", g.NX, g.NY, g.DX)
}
