package gen

func Min[T Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Clamp[T Ordered](v, min, max T) T {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
