package vm

import (
	"fmt"
	"math"
)

// SafeIntToUint32 safely converts int to uint32, used by load/store
// multiple's register-count arithmetic (a register list's popcount is
// always small and non-negative, but the conversion stays honest about it
// rather than silently wrapping).
// Returns error if value is negative or exceeds uint32 range.
func SafeIntToUint32(v int) (uint32, error) {
	if v < 0 {
		return 0, fmt.Errorf("cannot convert negative int %d to uint32", v)
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("int value %d exceeds uint32 maximum", v)
	}
	return uint32(v), nil
}
