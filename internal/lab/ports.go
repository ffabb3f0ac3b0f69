package lab

// nextFreePort returns the lowest port at or above base that is not in used,
// scanning at most rangeSize candidates. Correctness is relative to the
// registry's bookkeeping only: the OS is never consulted, so a port bound by
// an untracked process can still be returned.
func nextFreePort(base, rangeSize int, used []int) (int, error) {
	taken := make(map[int]bool, len(used))
	for _, p := range used {
		taken[p] = true
	}

	for port := base; port < base+rangeSize; port++ {
		if !taken[port] {
			return port, nil
		}
	}
	return 0, ErrNoPortAvailable
}
