package watch

// hysteresisComparator evaluates the change-detection rules against one
// item's hysteresis scratch state: a transition away from the current
// baseline only fires once the new value has been seen on `hysteresis`
// consecutive samples, filtering out single-sample noise. It is kept as
// a free function (rather than a method with hidden side effects) so
// its four branches can be exercised directly in tests without
// constructing a full Item.
//
// lastActionState is the baseline (the state at which the action last
// fired); candidateState/consecutiveCount are mutated in place.
func hysteresisComparator(lastActionState, newState int64, hysteresis uint64, candidateState *int64, consecutiveCount *uint64) (fire bool) {
	if hysteresis == 0 {
		return newState != lastActionState
	}

	if newState == lastActionState {
		*consecutiveCount = 0
		*candidateState = newState
		return false
	}

	if newState == *candidateState {
		*consecutiveCount++
		if *consecutiveCount >= hysteresis {
			*consecutiveCount = 0
			return true
		}
		return false
	}

	*candidateState = newState
	*consecutiveCount = 1
	return false
}
