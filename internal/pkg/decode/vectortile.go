package decode

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/samirrijal/overlaymap/internal/core/domain"
	"github.com/samirrijal/overlaymap/internal/pkg/geospatial"
)

const defaultExtent = 4096

// Vector tile geometry commands.
const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

// Feature is one decoded vector-tile feature projected to longitude/latitude.
// Parts holds one entry per point, line or ring; rings are closed.
type Feature struct {
	ID         uint64
	HasID      bool
	Kind       domain.GeometryKind
	Parts      [][]domain.GeoPoint
	Properties map[string]any
}

// DecodeVectorTile parses a Mapbox vector tile payload (optionally gzipped)
// and returns the features of the named layer projected with the bounds of
// tile. A missing layer yields no features and no error.
func DecodeVectorTile(data []byte, tile domain.TileCoordinate, layerName string) ([]Feature, error) {
	payload, err := maybeGunzip(data)
	if err != nil {
		return nil, err
	}

	b := payload
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, wireError("tile", n)
		}
		b = b[n:]

		if num != 3 || typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, wireError("tile", m)
			}
			b = b[m:]
			continue
		}

		raw, m := protowire.ConsumeBytes(b)
		if m < 0 {
			return nil, wireError("layer", m)
		}
		b = b[m:]

		l, err := parseLayer(raw)
		if err != nil {
			return nil, err
		}
		if l.name != layerName {
			continue
		}
		return l.project(tile)
	}
	return nil, nil
}

func maybeGunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", domain.ErrDecode, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", domain.ErrDecode, err)
	}
	return out, nil
}

type rawFeature struct {
	id       uint64
	hasID    bool
	geomType uint64
	tags     []uint64
	geometry []uint64
}

type rawLayer struct {
	version  uint64
	name     string
	extent   uint64
	keys     []string
	values   []any
	features []rawFeature
}

func parseLayer(b []byte) (*rawLayer, error) {
	l := &rawLayer{version: 1, extent: defaultExtent}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, wireError("layer", n)
		}
		b = b[n:]

		var m int
		switch {
		case num == 15 && typ == protowire.VarintType:
			l.version, m = protowire.ConsumeVarint(b)
		case num == 1 && typ == protowire.BytesType:
			var s []byte
			s, m = protowire.ConsumeBytes(b)
			l.name = string(s)
		case num == 2 && typ == protowire.BytesType:
			var raw []byte
			raw, m = protowire.ConsumeBytes(b)
			if m >= 0 {
				f, err := parseFeature(raw)
				if err != nil {
					return nil, err
				}
				l.features = append(l.features, f)
			}
		case num == 3 && typ == protowire.BytesType:
			var s []byte
			s, m = protowire.ConsumeBytes(b)
			l.keys = append(l.keys, string(s))
		case num == 4 && typ == protowire.BytesType:
			var raw []byte
			raw, m = protowire.ConsumeBytes(b)
			if m >= 0 {
				v, err := parseValue(raw)
				if err != nil {
					return nil, err
				}
				l.values = append(l.values, v)
			}
		case num == 5 && typ == protowire.VarintType:
			l.extent, m = protowire.ConsumeVarint(b)
		default:
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return nil, wireError("layer", m)
		}
		b = b[m:]
	}

	if l.version > 2 {
		return nil, fmt.Errorf("%w: vector tile layer %q has unsupported version %d", domain.ErrDecode, l.name, l.version)
	}
	if l.extent == 0 {
		return nil, fmt.Errorf("%w: vector tile layer %q has zero extent", domain.ErrDecode, l.name)
	}
	return l, nil
}

func parseFeature(b []byte) (rawFeature, error) {
	var f rawFeature
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, wireError("feature", n)
		}
		b = b[n:]

		var m int
		switch {
		case num == 1 && typ == protowire.VarintType:
			f.id, m = protowire.ConsumeVarint(b)
			f.hasID = m >= 0
		case num == 2:
			f.tags, m = consumeUints(b, typ, f.tags)
		case num == 3 && typ == protowire.VarintType:
			f.geomType, m = protowire.ConsumeVarint(b)
		case num == 4:
			f.geometry, m = consumeUints(b, typ, f.geometry)
		default:
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return f, wireError("feature", m)
		}
		b = b[m:]
	}
	return f, nil
}

// consumeUints reads a packed or a single unpacked repeated uint32 field.
func consumeUints(b []byte, typ protowire.Type, dst []uint64) ([]uint64, int) {
	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return dst, n
		}
		return append(dst, v), n
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return dst, n
		}
		for len(packed) > 0 {
			v, m := protowire.ConsumeVarint(packed)
			if m < 0 {
				return dst, m
			}
			dst = append(dst, v)
			packed = packed[m:]
		}
		return dst, n
	}
	return dst, -1
}

func parseValue(b []byte) (any, error) {
	var v any
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, wireError("value", n)
		}
		b = b[n:]

		var m int
		switch {
		case num == 1 && typ == protowire.BytesType:
			var s []byte
			s, m = protowire.ConsumeBytes(b)
			v = string(s)
		case num == 2 && typ == protowire.Fixed32Type:
			var bits uint32
			bits, m = protowire.ConsumeFixed32(b)
			v = float64(math.Float32frombits(bits))
		case num == 3 && typ == protowire.Fixed64Type:
			var bits uint64
			bits, m = protowire.ConsumeFixed64(b)
			v = math.Float64frombits(bits)
		case num == 4 && typ == protowire.VarintType:
			var u uint64
			u, m = protowire.ConsumeVarint(b)
			v = int64(u)
		case num == 5 && typ == protowire.VarintType:
			var u uint64
			u, m = protowire.ConsumeVarint(b)
			v = u
		case num == 6 && typ == protowire.VarintType:
			var u uint64
			u, m = protowire.ConsumeVarint(b)
			v = protowire.DecodeZigZag(u)
		case num == 7 && typ == protowire.VarintType:
			var u uint64
			u, m = protowire.ConsumeVarint(b)
			v = u != 0
		default:
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return nil, wireError("value", m)
		}
		b = b[m:]
	}
	return v, nil
}

func (l *rawLayer) project(tile domain.TileCoordinate) ([]Feature, error) {
	extent := float64(l.extent)
	out := make([]Feature, 0, len(l.features))
	for i, rf := range l.features {
		props, err := l.properties(rf.tags)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		parts, err := decodeGeometry(rf.geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		f := Feature{ID: rf.id, HasID: rf.hasID, Properties: props}
		switch rf.geomType {
		case 1:
			f.Kind = domain.KindPoint
		case 2:
			f.Kind = domain.KindLine
		case 3:
			f.Kind = domain.KindPolygon
		default:
			// unknown geometry types carry nothing we can draw
			continue
		}

		f.Parts = make([][]domain.GeoPoint, len(parts))
		for j, part := range parts {
			f.Parts[j] = make([]domain.GeoPoint, len(part))
			for k, px := range part {
				f.Parts[j][k] = geospatial.TilePoint(tile, float64(px[0]), float64(px[1]), extent)
			}
		}
		out = append(out, f)
	}
	return out, nil
}

func (l *rawLayer) properties(tags []uint64) (map[string]any, error) {
	if len(tags)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of tags", domain.ErrDecode)
	}
	props := make(map[string]any, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		k, v := tags[i], tags[i+1]
		if k >= uint64(len(l.keys)) || v >= uint64(len(l.values)) {
			return nil, fmt.Errorf("%w: tag index out of range", domain.ErrDecode)
		}
		props[l.keys[k]] = l.values[v]
	}
	return props, nil
}

// decodeGeometry expands the command stream into tile-pixel parts.
func decodeGeometry(cmds []uint64) ([][][2]int64, error) {
	var (
		parts [][][2]int64
		x, y  int64
	)
	for i := 0; i < len(cmds); {
		id, count := cmds[i]&0x7, int(cmds[i]>>3)
		i++
		switch id {
		case cmdMoveTo, cmdLineTo:
			if i+2*count > len(cmds) {
				return nil, fmt.Errorf("%w: truncated geometry", domain.ErrDecode)
			}
			if id == cmdLineTo && len(parts) == 0 {
				return nil, fmt.Errorf("%w: LineTo before MoveTo", domain.ErrDecode)
			}
			for k := 0; k < count; k++ {
				x += protowire.DecodeZigZag(cmds[i])
				y += protowire.DecodeZigZag(cmds[i+1])
				i += 2
				if id == cmdMoveTo {
					parts = append(parts, [][2]int64{{x, y}})
				} else {
					last := len(parts) - 1
					parts[last] = append(parts[last], [2]int64{x, y})
				}
			}
		case cmdClosePath:
			if len(parts) == 0 {
				return nil, fmt.Errorf("%w: ClosePath before MoveTo", domain.ErrDecode)
			}
			last := len(parts) - 1
			parts[last] = append(parts[last], parts[last][0])
		default:
			return nil, fmt.Errorf("%w: unknown geometry command %d", domain.ErrDecode, id)
		}
	}
	return parts, nil
}

func wireError(what string, n int) error {
	return fmt.Errorf("%w: vector tile %s: %v", domain.ErrDecode, what, protowire.ParseError(n))
}
