package engine

// reconcileWireBlock maps an ambiguous 16-bit wire ACK block number back to
// the unique 64-bit logical block number, by finding the candidate in
// [base, base+windowSize] whose low 16 bits equal wireBlock (spec §4.4).
//
// ok is false when no candidate lies in [base, base+windowSize] and none lies
// behind base: an ACK ahead of anything the window can have sent. duplicate is true when the
// reconstructed logical value is behind base — a retransmitted ACK for
// already-acknowledged data, to be discarded.
func reconcileWireBlock(wireBlock uint16, base uint64, windowSize int) (logical uint64, duplicate bool, ok bool) {
	lowBase := uint16(base)
	same := base - uint64(lowBase) + uint64(wireBlock)
	upper := base + uint64(windowSize)

	candidates := make([]uint64, 0, 3)
	if same >= 0x10000 {
		candidates = append(candidates, same-0x10000)
	}
	candidates = append(candidates, same, same+0x10000)

	for _, c := range candidates {
		if c >= base && c <= upper {
			return c, false, true
		}
	}
	for _, c := range candidates {
		if c < base {
			return c, true, true
		}
	}
	return 0, false, false
}
