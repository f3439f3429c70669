package bytecode

import "fmt"

// Architecture fixes the operand width of a whole Program.
type Architecture uint8

const (
	Arch32 Architecture = 32
	Arch64 Architecture = 64
)

// ParseArchitecture converts a bit count (as written in ellie.toml) to an
// Architecture.
func ParseArchitecture(bits int) (Architecture, error) {
	switch bits {
	case 32:
		return Arch32, nil
	case 64:
		return Arch64, nil
	}
	return 0, fmt.Errorf("unsupported architecture: %d bits", bits)
}

// Valid reports whether a is a known architecture.
func (a Architecture) Valid() bool {
	return a == Arch32 || a == Arch64
}

// Width returns the operand width in bytes.
func (a Architecture) Width() int {
	if a == Arch32 {
		return 4
	}
	return 8
}

// MaxInt returns the largest integer representable at this width.
func (a Architecture) MaxInt() int64 {
	if a == Arch32 {
		return 1<<31 - 1
	}
	return 1<<63 - 1
}

// MinInt returns the smallest integer representable at this width.
func (a Architecture) MinInt() int64 {
	if a == Arch32 {
		return -1 << 31
	}
	return -1 << 63
}

// FitsInt reports whether n can be encoded at this width.
func (a Architecture) FitsInt(n int64) bool {
	return n >= a.MinInt() && n <= a.MaxInt()
}

func (a Architecture) String() string {
	switch a {
	case Arch32:
		return "b32"
	case Arch64:
		return "b64"
	}
	return fmt.Sprintf("arch(%d)", uint8(a))
}
