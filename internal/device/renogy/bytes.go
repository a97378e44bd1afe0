// internal/device/renogy/bytes.go
package renogy

import (
	"bytes"
	"math"
)

// ---------- Register helpers (big-endian by word) ----------

func u16(b []byte, word int) uint16 {
	i := word * 2
	if i+2 > len(b) {
		return 0
	}
	return uint16(b[i])<<8 | uint16(b[i+1])
}

func s16(b []byte, word int) int16 {
	return int16(u16(b, word)) // two's complement
}

func u32(b []byte, word int) uint32 {
	return uint32(u16(b, word))<<16 | uint32(u16(b, word+1))
}

func u8(b []byte, i int) uint8 {
	if i >= len(b) {
		return 0
	}
	return b[i]
}

// scaled rounds v*scale to the precision implied by scale.
func scaled(v float64, scale float64) float64 {
	digits := math.Round(-math.Log10(scale))
	if digits < 0 {
		digits = 0
	}
	p := math.Pow(10, digits)
	return math.Round(v*scale*p) / p
}

// text decodes a NUL padded ASCII field.
func text(b []byte) string {
	if i := bytes.IndexByte(b, 0x00); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}

// temperature decodes the controller's sign-magnitude byte temperature.
func temperature(b uint8) int {
	v := int(b & 0x7F)
	if b&0x80 != 0 {
		return -v
	}
	return v
}
