package core

// itoa converts an integer to a string without using fmt package
// This is a lightweight alternative for embedded systems
func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	negative := n < 0
	if negative {
		n = -n
	}

	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if negative {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// hex32 formats n as upper-case hex without leading zeros
func hex32(n uint32) string {
	const digits = "0123456789ABCDEF"
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = digits[n&0xF]
		n >>= 4
	}
	return string(buf[pos:])
}

// ftoa formats f with three decimals, enough for debug output
func ftoa(f float32) string {
	if f != f {
		return "NaN"
	}
	s := ""
	if f < 0 {
		s = "-"
		f = -f
	}
	if f > 2e9 {
		return s + "Inf"
	}
	whole := uint32(f)
	frac := uint32((f-float32(whole))*1000 + 0.5)
	if frac >= 1000 {
		whole++
		frac -= 1000
	}
	fs := utoa(frac)
	for len(fs) < 3 {
		fs = "0" + fs
	}
	return s + utoa(whole) + "." + fs
}
