// Package transform holds the pure value conversions used by device data models.
package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lte-gateway/enodebd/internal/datamodel"
)

// bandwidthTable maps channel bandwidth in MHz to the resource block code
// devices use on the wire.
var bandwidthTable = []struct {
	mhz float64
	rbs string
}{
	{1.4, "n6"},
	{3, "n15"},
	{5, "n25"},
	{10, "n50"},
	{15, "n75"},
	{20, "n100"},
}

// BandwidthForEnb maps MHz to the resource block code
func BandwidthForEnb(value any) (string, error) {
	mhz, ok := datamodel.ToFloat(value)
	if !ok {
		s, isStr := value.(string)
		if !isStr {
			return "", fmt.Errorf("bandwidth must be numeric, got %T", value)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return "", fmt.Errorf("invalid bandwidth %q", s)
		}
		mhz = f
	}
	for _, e := range bandwidthTable {
		if math.Abs(e.mhz-mhz) < 1e-6 {
			return e.rbs, nil
		}
	}
	return "", fmt.Errorf("unknown bandwidth %v MHz", mhz)
}

// BandwidthForMagma maps a resource block code, with or without the n prefix, to MHz
func BandwidthForMagma(raw string) (any, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, "n") {
		s = "n" + s
	}
	for _, e := range bandwidthTable {
		if e.rbs == s {
			return e.mhz, nil
		}
	}
	return nil, fmt.Errorf("unknown bandwidth code %q", raw)
}
