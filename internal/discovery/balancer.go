package discovery

import "sync"

// target is one address of an endpoint with its weight and breaker
type target struct {
	addr    Address
	weight  int
	breaker *Breaker
}

// weightedRoundRobin picks among the targets of one endpoint
type weightedRoundRobin struct {
	targets       []*target
	mu            sync.Mutex
	currentIndex  int
	currentWeight int
}

func newWeightedRoundRobin(targets []*target) *weightedRoundRobin {
	return &weightedRoundRobin{
		targets:      targets,
		currentIndex: -1,
	}
}

// next returns the next available target, or nil if every breaker is open
func (wrr *weightedRoundRobin) next() *target {
	wrr.mu.Lock()
	defer wrr.mu.Unlock()

	available := make([]*target, 0, len(wrr.targets))
	for _, t := range wrr.targets {
		if t.breaker.Allow() {
			available = append(available, t)
		}
	}

	if len(available) == 0 {
		return nil
	}
	if len(available) == 1 {
		return available[0]
	}

	g := available[0].weight
	maxWeight := 0
	for _, t := range available {
		g = gcd(g, t.weight)
		if t.weight > maxWeight {
			maxWeight = t.weight
		}
	}

	for {
		wrr.currentIndex = (wrr.currentIndex + 1) % len(available)

		if wrr.currentIndex == 0 {
			wrr.currentWeight = wrr.currentWeight - g
			if wrr.currentWeight <= 0 {
				wrr.currentWeight = maxWeight
			}
		}

		t := available[wrr.currentIndex]
		if t.weight >= wrr.currentWeight {
			return t
		}
	}
}

// gcd calculates the greatest common divisor
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
