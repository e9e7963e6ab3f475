package volume

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// readVoxels decodes n voxels of type dt from r.
func readVoxels(r io.Reader, order binary.ByteOrder, dt DataType, n int) ([]float64, error) {
	size := dt.Size()
	if size == 0 {
		return nil, fmt.Errorf("read voxels: unsupported data type %s", dt)
	}
	buf := make([]byte, size*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read voxels: %w", err)
	}
	out := make([]float64, n)
	for i := range out {
		b := buf[i*size : (i+1)*size]
		switch dt {
		case Uint8:
			out[i] = float64(b[0])
		case Int8:
			out[i] = float64(int8(b[0]))
		case Uint16:
			out[i] = float64(order.Uint16(b))
		case Int16:
			out[i] = float64(int16(order.Uint16(b)))
		case Uint32:
			out[i] = float64(order.Uint32(b))
		case Int32:
			out[i] = float64(int32(order.Uint32(b)))
		case Float32:
			out[i] = float64(math.Float32frombits(order.Uint32(b)))
		case Float64:
			out[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return out, nil
}

// writeVoxels encodes data as dt into w.
func writeVoxels(w io.Writer, order binary.ByteOrder, dt DataType, data []float64) error {
	size := dt.Size()
	if size == 0 {
		return fmt.Errorf("write voxels: unsupported data type %s", dt)
	}
	const chunk = 1 << 16
	buf := make([]byte, 0, size*min(len(data), chunk))
	for start := 0; start < len(data); start += chunk {
		end := min(start+chunk, len(data))
		buf = buf[:size*(end-start)]
		for i, value := range data[start:end] {
			b := buf[i*size : (i+1)*size]
			value = dt.Coerce(value)
			switch dt {
			case Uint8:
				b[0] = uint8(value)
			case Int8:
				b[0] = uint8(int8(value))
			case Uint16:
				order.PutUint16(b, uint16(value))
			case Int16:
				order.PutUint16(b, uint16(int16(value)))
			case Uint32:
				order.PutUint32(b, uint32(value))
			case Int32:
				order.PutUint32(b, uint32(int32(value)))
			case Float32:
				order.PutUint32(b, math.Float32bits(float32(value)))
			case Float64:
				order.PutUint64(b, math.Float64bits(value))
			}
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write voxels: %w", err)
		}
	}
	return nil
}
