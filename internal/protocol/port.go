package protocol

// Port derives the lamp's UDP port from the shared network key and group.
// The firmware runs the same hash, so the multiply-then-mod order per
// character must not change.
func Port(networkKey string, group int) int {
	acc := 17
	for _, r := range networkKey {
		acc *= int(r)
		acc %= 65536
	}
	return acc%15000 + 50000 + group
}
