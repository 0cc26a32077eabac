package hwio

func GetBit32(v uint32, n uint) bool {
	return GetBiti32(v, n) != 0
}

func GetBiti32(v uint32, n uint) uint32 {
	return v >> (n) & 0x01
}

func SetBit32(v *uint32, n uint) {
	*v |= (1 << n)
}

func ClearBit32(v *uint32, n uint) {
	*v &= ^(1 << n)
}

// Bits extracts the field of width bits starting at bit lo.
func Bits(v uint32, lo, width uint) uint32 {
	return (v >> lo) & (1<<width - 1)
}
