package bits

import (
	"encoding/binary"
	"math/big"
	"strconv"
)

// Unbounded is the width of a value without a bit limit.
const Unbounded = 0

// Value is an immutable integer with a bit width. Widths 1..64 are stored
// inline, wider and unbounded values use a big.Int that is never mutated
// after construction. Bounded values are unsigned and wrap modulo 2^width.
type Value struct {
	w int
	u uint64
	b *big.Int
}

func small(w int) bool { return w >= 1 && w <= 64 }

func mask(w int) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(w)) - 1
}

func bigMask(w int) *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), uint(w))
	return m.Sub(m, big.NewInt(1))
}

// New returns v truncated to width bits.
func New(width int, v uint64) Value {
	if width < 0 {
		width = Unbounded
	}
	if small(width) {
		return Value{w: width, u: v & mask(width)}
	}
	return Value{w: width, b: new(big.Int).SetUint64(v)}
}

// FromInt returns v in two's complement truncated to width bits. Unbounded
// values keep their sign.
func FromInt(width int, v int64) Value {
	if small(width) {
		return Value{w: width, u: uint64(v) & mask(width)}
	}
	return FromBig(width, big.NewInt(v))
}

// FromBig copies x into a value of the given width.
func FromBig(width int, x *big.Int) Value {
	if width < 0 {
		width = Unbounded
	}
	if x == nil {
		return Zero(width)
	}
	if small(width) {
		t := new(big.Int).And(x, bigMask(width))
		return Value{w: width, u: t.Uint64()}
	}
	c := new(big.Int).Set(x)
	if width != Unbounded {
		c.And(c, bigMask(width))
	}
	return Value{w: width, b: c}
}

// Zero returns the zero value of a width.
func Zero(width int) Value {
	return New(width, 0)
}

// Bool returns a 1-bit value.
func Bool(b bool) Value {
	if b {
		return Value{w: 1, u: 1}
	}
	return Value{w: 1}
}

func (v Value) Width() int { return v.w }

func (v Value) big() *big.Int {
	if v.b != nil {
		return v.b
	}
	return new(big.Int).SetUint64(v.u)
}

// Big returns a copy of the value as a big.Int.
func (v Value) Big() *big.Int {
	return new(big.Int).Set(v.big())
}

// Uint64 returns the low 64 bits.
func (v Value) Uint64() uint64 {
	if v.b == nil {
		return v.u
	}
	if v.b.Sign() < 0 {
		return uint64(v.b.Int64())
	}
	return new(big.Int).And(v.b, bigMask(64)).Uint64()
}

// Int64 interprets the value as two's complement of its width.
func (v Value) Int64() int64 {
	if small(v.w) {
		if v.w == 64 {
			return int64(v.u)
		}
		if v.u&(uint64(1)<<uint(v.w-1)) != 0 {
			return int64(v.u | ^mask(v.w))
		}
		return int64(v.u)
	}
	return v.big().Int64()
}

func (v Value) IsZero() bool {
	if v.b == nil {
		return v.u == 0
	}
	return v.b.Sign() == 0
}

func (v Value) Bool() bool { return !v.IsZero() }

// Bit returns bit i as 0 or 1.
func (v Value) Bit(i int) uint {
	if i < 0 {
		return 0
	}
	if v.b == nil {
		if i >= 64 {
			return 0
		}
		return uint(v.u>>uint(i)) & 1
	}
	return v.b.Bit(i)
}

// Equal compares numeric values, ignoring width.
func (v Value) Equal(o Value) bool {
	if v.b == nil && o.b == nil {
		return v.u == o.u
	}
	return v.big().Cmp(o.big()) == 0
}

// Resize truncates or widens the value to width bits.
func (v Value) Resize(width int) Value {
	if width == v.w {
		return v
	}
	if v.b == nil && small(width) {
		return Value{w: width, u: v.u & mask(width)}
	}
	return FromBig(width, v.big())
}

func resultWidth(a, b Value) int {
	if a.w == Unbounded || b.w == Unbounded {
		return Unbounded
	}
	if a.w > b.w {
		return a.w
	}
	return b.w
}

func (v Value) Add(o Value) Value {
	w := resultWidth(v, o)
	if small(w) && v.b == nil && o.b == nil {
		return Value{w: w, u: (v.u + o.u) & mask(w)}
	}
	return FromBig(w, new(big.Int).Add(v.big(), o.big()))
}

func (v Value) Sub(o Value) Value {
	w := resultWidth(v, o)
	if small(w) && v.b == nil && o.b == nil {
		return Value{w: w, u: (v.u - o.u) & mask(w)}
	}
	return FromBig(w, new(big.Int).Sub(v.big(), o.big()))
}

func (v Value) Mul(o Value) Value {
	w := resultWidth(v, o)
	if small(w) && v.b == nil && o.b == nil {
		return Value{w: w, u: (v.u * o.u) & mask(w)}
	}
	return FromBig(w, new(big.Int).Mul(v.big(), o.big()))
}

func (v Value) And(o Value) Value {
	w := resultWidth(v, o)
	if small(w) && v.b == nil && o.b == nil {
		return Value{w: w, u: v.u & o.u}
	}
	return FromBig(w, new(big.Int).And(v.big(), o.big()))
}

func (v Value) Or(o Value) Value {
	w := resultWidth(v, o)
	if small(w) && v.b == nil && o.b == nil {
		return Value{w: w, u: v.u | o.u}
	}
	return FromBig(w, new(big.Int).Or(v.big(), o.big()))
}

func (v Value) Xor(o Value) Value {
	w := resultWidth(v, o)
	if small(w) && v.b == nil && o.b == nil {
		return Value{w: w, u: v.u ^ o.u}
	}
	return FromBig(w, new(big.Int).Xor(v.big(), o.big()))
}

// Not inverts every bit of a bounded value. Unbounded values follow
// two's complement, so Not(x) == -x-1.
func (v Value) Not() Value {
	if small(v.w) {
		return Value{w: v.w, u: ^v.u & mask(v.w)}
	}
	return FromBig(v.w, new(big.Int).Not(v.big()))
}

func (v Value) Shl(n uint) Value {
	if small(v.w) {
		if n >= 64 {
			return Zero(v.w)
		}
		return Value{w: v.w, u: (v.u << n) & mask(v.w)}
	}
	return FromBig(v.w, new(big.Int).Lsh(v.big(), n))
}

func (v Value) Shr(n uint) Value {
	if small(v.w) {
		if n >= 64 {
			return Zero(v.w)
		}
		return Value{w: v.w, u: v.u >> n}
	}
	return FromBig(v.w, new(big.Int).Rsh(v.big(), n))
}

// Slice returns bits hi..lo inclusive as a value of width hi-lo+1.
func (v Value) Slice(hi, lo int) Value {
	if hi < lo || lo < 0 {
		return Zero(1)
	}
	return v.Shr(uint(lo)).Resize(hi - lo + 1)
}

func (v Value) String() string {
	if v.b == nil {
		return strconv.FormatUint(v.u, 10)
	}
	return v.b.String()
}

// Binary renders the value in base 2 without leading zeros.
func (v Value) Binary() string {
	if v.b == nil {
		return strconv.FormatUint(v.u, 2)
	}
	return v.b.Text(2)
}

// AppendBytes appends a stable encoding of width and value to dst.
func (v Value) AppendBytes(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(v.w))
	if v.b == nil {
		return binary.LittleEndian.AppendUint64(dst, v.u)
	}
	if v.b.Sign() < 0 {
		dst = append(dst, '-')
	}
	return append(dst, v.b.Bytes()...)
}
