package transform

import (
	"strconv"

	"github.com/lte-gateway/enodebd/internal/datamodel"
)

// Firmware before BaiStation_V100R001C00B110SPC003 advertises CellBarred and
// CellReservedForOperatorUse with the opposite meaning. Only writes are
// flipped: the device already reports the corrected value.

// InvertBoolForEnb writes the logical negation of a boolean
func InvertBoolForEnb(value any) (string, error) {
	b, err := datamodel.ToBool(value)
	if err != nil {
		return "", err
	}
	return strconv.FormatBool(!b), nil
}
