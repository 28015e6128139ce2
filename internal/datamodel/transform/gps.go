package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lte-gateway/enodebd/internal/datamodel"
)

// gpsScale is the fixed-point factor of TR-181 LockedLatitude/LockedLongitude
const gpsScale = 1e6

// GpsForMagma converts millionths of a degree into decimal degrees
func GpsForMagma(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid gps coordinate %q", raw)
	}
	return float64(n) / gpsScale, nil
}

// GpsForEnb converts decimal degrees into millionths of a degree
func GpsForEnb(value any) (string, error) {
	deg, ok := datamodel.ToFloat(value)
	if !ok {
		s, isStr := value.(string)
		if !isStr {
			return "", fmt.Errorf("gps coordinate must be numeric, got %T", value)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return "", fmt.Errorf("invalid gps coordinate %q", s)
		}
		deg = f
	}
	if deg < -180 || deg > 180 {
		return "", fmt.Errorf("gps coordinate %v out of range", deg)
	}
	return strconv.FormatInt(int64(math.Round(deg*gpsScale)), 10), nil
}
