package module

import (
	"fmt"
	"math"
)

// Low returns the low byte of v.
func Low(v int) byte {
	return byte(v & 0xff)
}

// High returns the second lowest byte of v.
func High(v int) byte {
	return byte((v >> 8) & 0xff)
}

// ToInt16 combines two bytes into an integer, optionally sign extended.
func ToInt16(high, low byte, signed bool) int {
	v := int(low) | int(high)<<8
	if signed && v > math.MaxInt16 {
		v -= 1 << 16
	}
	return v
}

// Clamp limits x to [min, max].
func Clamp(min, max, x float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

// Quantize maps x in [lo, hi] onto the unsigned range of an n-byte integer.
func Quantize(x, lo, hi float64, n int) int {
	top := float64(uint64(1)<<(8*uint(n)) - 1)
	x = Clamp(lo, hi, x)
	return int(math.Round((x - lo) / (hi - lo) * top))
}

// Dequantize is the inverse of Quantize.
func Dequantize(v int, lo, hi float64, n int) float64 {
	top := float64(uint64(1)<<(8*uint(n)) - 1)
	return float64(v)*(hi-lo)/top + lo
}

// checkValue verifies v can be encoded into field f without loss.
func checkValue(f FieldDef, v Value) error {
	switch f.Kind {
	case Bytes, String:
		if len(v.Bytes) > len(f.Addrs) {
			return fmt.Errorf("%w: %q holds %d bytes, got %d", ErrOutOfRange, f.Name, len(f.Addrs), len(v.Bytes))
		}
	case Bool:
		if v.Int != 0 && v.Int != 1 {
			return fmt.Errorf("%w: %q is boolean, got %d", ErrOutOfRange, f.Name, v.Int)
		}
	default:
		max := 1<<(8*uint(len(f.Addrs))) - 1
		if v.Int < 0 || v.Int > max {
			return fmt.Errorf("%w: %q accepts 0..%d, got %d", ErrOutOfRange, f.Name, max, v.Int)
		}
	}
	return nil
}

// writeSize is the number of bytes appendWrite emits.
func writeSize(f FieldDef, v Value) int {
	switch f.Kind {
	case Bytes, String:
		n := len(v.Bytes)
		if n > len(f.Addrs) {
			n = len(f.Addrs)
		}
		return 2 * n
	}
	return 2 * len(f.Addrs)
}

// appendWrite emits (address, byte) pairs for a field value.
// Integers are little endian, strings and lists use one address per element.
func appendWrite(dst []byte, f FieldDef, v Value) []byte {
	switch f.Kind {
	case Bytes, String:
		for i, b := range v.Bytes {
			if i >= len(f.Addrs) {
				break
			}
			dst = append(dst, f.Addrs[i], b)
		}
	case Bool:
		var b byte
		if v.Bool() {
			b = 1
		}
		dst = append(dst, f.Addrs[0], b)
	default:
		dst = append(dst, f.Addrs[0], Low(v.Int))
		if len(f.Addrs) > 1 {
			dst = append(dst, f.Addrs[1], High(v.Int))
		}
	}
	return dst
}

// appendRead emits read requests for every address of a field.
func appendRead(dst []byte, f FieldDef) []byte {
	for _, addr := range f.Addrs {
		dst = append(dst, ReadFlag|addr)
	}
	return dst
}

// decodeValue decodes len(f.Addrs) reply bytes. Two-byte integers are
// combined as low+255*high unless exactWord is set.
func decodeValue(f FieldDef, data []byte, exactWord bool) Value {
	switch f.Kind {
	case Bytes, String:
		return BytesValue(data[:len(f.Addrs)]...)
	case Bool:
		return BoolValue(data[0] != 0)
	}
	if len(f.Addrs) == 1 {
		return IntValue(int(data[0]))
	}
	if exactWord {
		return IntValue(int(data[0]) + 256*int(data[1]))
	}
	return IntValue(int(data[0]) + 255*int(data[1]))
}
