package tensor

// Value generators for FromGen. They are handy for building test images and
// weight planes.

// MakeConstGen returns a generator that always yields constant.
func MakeConstGen(constant float64) func() float64 {
	return func() float64 {
		return constant
	}
}

// MakeIncreasingGen returns a generator that yields start+1, start+2, ...
func MakeIncreasingGen(start float64) func() float64 {
	current := start
	return func() float64 {
		current++
		return current
	}
}

// MakeCycleGen returns a generator that repeats values forever.
func MakeCycleGen(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}
