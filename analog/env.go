package analog

import (
	"hash/fnv"
	"math/rand/v2"

	"github.com/sarchlab/camsim/tensor"
)

// Env owns all random state of one functional simulation: a temporal-noise
// generator and a fabrication generator per primitive instance, and the
// arena of fixed-pattern fields drawn from the latter. Two environments
// created with the same seed produce identical outputs for the same calls.
type Env struct {
	seed   int64
	noise  map[string]*rand.Rand
	fab    map[string]*rand.Rand
	fields map[fieldKey]*tensor.Tensor
}

type fieldKey struct {
	instance string
	kind     string
}

// NewEnv creates an environment seeded with seed.
func NewEnv(seed int64) *Env {
	return &Env{
		seed:   seed,
		noise:  make(map[string]*rand.Rand),
		fab:    make(map[string]*rand.Rand),
		fields: make(map[fieldKey]*tensor.Tensor),
	}
}

// Seed returns the seed of the environment.
func (e *Env) Seed() int64 {
	return e.seed
}

func (e *Env) derive(instance, stream string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(instance))
	h.Write([]byte{0})
	h.Write([]byte(stream))

	return rand.New(rand.NewPCG(uint64(e.seed), h.Sum64()))
}

// Rand returns the temporal-noise generator of a primitive instance.
func (e *Env) Rand(instance string) *rand.Rand {
	r, ok := e.noise[instance]
	if !ok {
		r = e.derive(instance, "noise")
		e.noise[instance] = r
	}

	return r
}

// Field returns the fixed-pattern field of the given kind for an instance.
// The field is drawn once with the instance's fabrication generator and
// reused; a request with a different shape redraws it.
func (e *Env) Field(
	instance, kind string,
	s tensor.Shape,
	draw func(r *rand.Rand, s tensor.Shape) *tensor.Tensor,
) *tensor.Tensor {
	key := fieldKey{instance: instance, kind: kind}
	if f, ok := e.fields[key]; ok && f.Shape() == s {
		return f
	}

	r, ok := e.fab[instance]
	if !ok {
		r = e.derive(instance, "fab")
		e.fab[instance] = r
	}

	f := draw(r, s)
	e.fields[key] = f

	return f
}

// NumFields returns how many fixed-pattern fields are memoized.
func (e *Env) NumFields() int {
	return len(e.fields)
}
