package compress

import (
	"fmt"

	"github.com/corona10/goimagehash"
)

// Fidelity returns the perceptual hash distance (0-64) between the source
// and its compressed artifact. Lower means closer.
func Fidelity(original, compressed []byte) (int, error) {
	a, _, err := Decode(original)
	if err != nil {
		return 0, err
	}
	b, _, err := Decode(compressed)
	if err != nil {
		return 0, err
	}

	ha, err := goimagehash.PerceptionHash(a)
	if err != nil {
		return 0, fmt.Errorf("failed to compute hash: %w", err)
	}
	hb, err := goimagehash.PerceptionHash(b)
	if err != nil {
		return 0, fmt.Errorf("failed to compute hash: %w", err)
	}

	return ha.Distance(hb)
}
