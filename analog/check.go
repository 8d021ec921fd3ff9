package analog

import (
	"github.com/pkg/errors"
)

// CheckConnectConsistency verifies the domain contract of an array graph.
// Inside every array each component must accept the domain of the one
// before it; across every edge each tail of the producer must emit a domain
// that every head of the consumer accepts; and each array must have exactly
// one producer per non-external input domain.
func CheckConnectConsistency(arrays []*Array) error {
	order, err := SortArrays(arrays)
	if err != nil {
		return err
	}

	for _, a := range order {
		if err := checkInside(a); err != nil {
			return err
		}

		if err := checkFanIn(a); err != nil {
			return err
		}

		for _, consumer := range a.consumers {
			if err := checkEdge(a, consumer); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkInside(a *Array) error {
	for i := 1; i < len(a.components); i++ {
		prev := a.components[i-1].component
		next := a.components[i].component

		if !containsDomain(next.inputDomains, prev.outputDomain) {
			return errors.Wrapf(ErrDomainMismatch,
				"array %s: component %s outputs %s, component %s accepts %s",
				a.name, prev.name, prev.outputDomain.Name(),
				next.name, domainNames(next.inputDomains))
		}
	}

	return nil
}

func checkFanIn(a *Array) error {
	internal := 0
	for _, d := range a.inputDomains {
		if !d.External() {
			internal++
		}
	}

	if internal != len(a.producers) {
		return errors.Wrapf(ErrDomainMismatch,
			"array %s: %d producer arrays for input domains %s",
			a.name, len(a.producers), domainNames(a.inputDomains))
	}

	return nil
}

func checkEdge(producer, consumer *Array) error {
	for _, tail := range producer.DestinationComponents() {
		for _, head := range consumer.SourceComponents() {
			if containsDomain(head.inputDomains, tail.outputDomain) {
				continue
			}

			return errors.Wrapf(ErrDomainMismatch,
				"array %s outputs %s, array %s accepts %s",
				producer.name, tail.outputDomain.Name(),
				consumer.name, domainNames(head.inputDomains))
		}
	}

	return nil
}

// SortArrays returns arrays in producer-before-consumer order. Arrays keep
// their given order where the graph allows it. Producers that are not in
// arrays are treated as already done.
func SortArrays(arrays []*Array) ([]*Array, error) {
	member := make(map[*Array]bool, len(arrays))
	for _, a := range arrays {
		member[a] = true
	}

	done := make(map[*Array]bool, len(arrays))
	order := make([]*Array, 0, len(arrays))

	for len(order) < len(arrays) {
		next := firstReady(arrays, member, done)
		if next == nil {
			return nil, errors.Errorf("analog array graph has a cycle")
		}

		done[next] = true
		order = append(order, next)
	}

	return order, nil
}

func firstReady(arrays []*Array, member, done map[*Array]bool) *Array {
	for _, a := range arrays {
		if !done[a] && producersDone(a, member, done) {
			return a
		}
	}

	return nil
}

func producersDone(a *Array, member, done map[*Array]bool) bool {
	for _, p := range a.producers {
		if member[p] && !done[p] {
			return false
		}
	}

	return true
}
