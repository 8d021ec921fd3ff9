// Package analog models the in-sensor analog signal chain: primitives with
// energy and noise contracts, components that chain them, and arrays that
// tile components and connect into a domain-checked graph.
package analog

import (
	"strings"

	"github.com/pkg/errors"
)

// Domain is the physical quantity carried by an analog edge.
type Domain int

const (
	Optical Domain = iota
	Voltage
	Current
	Charge
	Time
	Digital
)

// Name returns the name of the domain.
func (d Domain) Name() string {
	switch d {
	case Optical:
		return "Optical"
	case Voltage:
		return "Voltage"
	case Current:
		return "Current"
	case Charge:
		return "Charge"
	case Time:
		return "Time"
	case Digital:
		return "Digital"
	default:
		panic("invalid domain")
	}
}

func (d Domain) String() string {
	return d.Name()
}

// External reports whether the domain is supplied from outside the array
// graph: light comes from the scene and digital values from weight storage.
func (d Domain) External() bool {
	return d == Optical || d == Digital
}

func containsDomain(ds []Domain, d Domain) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}

	return false
}

func domainNames(ds []Domain) string {
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name()
	}

	return "[" + strings.Join(names, ", ") + "]"
}

var (
	// ErrDomainMismatch marks an edge whose producer output domain is not
	// accepted by the consumer.
	ErrDomainMismatch = errors.New("analog: domain mismatch")

	// ErrFanIn marks a primitive called with the wrong number of inputs.
	ErrFanIn = errors.New("analog: unexpected number of inputs")

	// ErrNoise marks an invalid noise parameter bundle.
	ErrNoise = errors.New("analog: invalid noise parameters")

	// ErrNotConfigured marks a kernel-dependent primitive used before
	// Configure.
	ErrNotConfigured = errors.New("analog: operation not configured")

	// ErrParameter marks an invalid physical parameter.
	ErrParameter = errors.New("analog: invalid parameter")
)
