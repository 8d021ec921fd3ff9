package analog

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sarchlab/camsim/tensor"
)

// NoiseParams is the functional contract of a primitive:
// O = gain * I + N(0, Sigma^2) + Offset.
type NoiseParams struct {
	// Gain is the small-signal gain. Primitive constructors replace a zero
	// Gain with unity unless ZeroGain is set.
	Gain     float64
	ZeroGain bool

	// Sigma is the standard deviation of the additive read noise.
	Sigma float64

	// Offset is a constant added after the gain.
	Offset float64

	// EnablePRNU replaces Gain with a fixed random field of mean Gain and
	// standard deviation Gain*PRNUSigma.
	EnablePRNU bool
	PRNUSigma  float64

	// Columnwise draws the PRNU field once per column and broadcasts it.
	Columnwise bool
}

// Validate checks that all standard deviations are finite and non-negative.
func (p NoiseParams) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return errors.Wrapf(ErrNoise, "%s = %g", name, v)
		}

		return nil
	}

	if err := check("sigma", p.Sigma); err != nil {
		return err
	}

	if err := check("prnu sigma", p.PRNUSigma); err != nil {
		return err
	}

	if math.IsNaN(p.Gain) || math.IsNaN(p.Offset) {
		return errors.Wrap(ErrNoise, "gain and offset must be numbers")
	}

	return nil
}

func (p NoiseParams) gain() float64 {
	if p.Gain == 0 && !p.ZeroGain {
		return 1
	}

	return p.Gain
}

func (p NoiseParams) withDefaults() NoiseParams {
	p.Gain = p.gain()
	return p
}

// Noiseless reports whether the contract is the identity.
func (p NoiseParams) Noiseless() bool {
	return p.gain() == 1 && p.Sigma == 0 && p.Offset == 0 && !p.EnablePRNU
}

const (
	fieldPRNU = "prnu"
	fieldDCNU = "dcnu"
)

// gainField returns the gain to apply to an input of shape s, either as a
// scalar (field == nil) or as a memoized fixed-pattern field.
func (p NoiseParams) gainField(
	env *Env,
	instance string,
	s tensor.Shape,
) (scalar float64, field *tensor.Tensor) {
	g := p.gain()
	if !p.EnablePRNU || p.PRNUSigma == 0 {
		return g, nil
	}

	draw := func(r *rand.Rand, s tensor.Shape) *tensor.Tensor {
		return tensor.FromGen(s, func() float64 {
			return gaussian(r, g, g*p.PRNUSigma)
		})
	}

	if !p.Columnwise {
		return g, env.Field(instance, fieldPRNU, s, draw)
	}

	col := env.Field(instance, fieldPRNU, tensor.S(1, s.W, 1), draw)

	return g, col.Broadcast(s)
}

// transfer applies the linear contract to in.
func (p NoiseParams) transfer(
	env *Env,
	instance string,
	in *tensor.Tensor,
) *tensor.Tensor {
	g, field := p.gainField(env, instance, in.Shape())

	var out *tensor.Tensor
	if field != nil {
		out = tensor.Mul(in, field)
	} else {
		out = in.Scale(g)
	}

	addNoise(out, env.Rand(instance), p.Sigma, p.Offset)

	return out
}

// addNoise adds N(offset, sigma^2) to every element of t in place.
func addNoise(t *tensor.Tensor, r *rand.Rand, sigma, offset float64) {
	if sigma == 0 && offset == 0 {
		return
	}

	data := t.Data()
	for i := range data {
		data[i] += gaussian(r, offset, sigma)
	}
}

func gaussian(r *rand.Rand, mu, sigma float64) float64 {
	if sigma == 0 {
		return mu
	}

	return distuv.Normal{Mu: mu, Sigma: sigma, Src: r}.Rand()
}

// poisson draws one Poisson sample of mean lambda.
func poisson(r *rand.Rand, lambda float64) float64 {
	if lambda <= 0 {
		return 0
	}

	return distuv.Poisson{Lambda: lambda, Src: r}.Rand()
}
