package datamodel

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lte-gateway/enodebd/pkg/tr069"
)

var (
	// ErrUnsupportedParameter means the device variant has no descriptor for a name
	ErrUnsupportedParameter = errors.New("unsupported parameter")
	// ErrTransform means a value could not be converted between wire and canonical form
	ErrTransform = errors.New("transform failed")
)

// EnbTransform converts a canonical value into its wire string
type EnbTransform func(value any) (string, error)

// MagmaTransform converts a wire string into its canonical value
type MagmaTransform func(raw string) (any, error)

// DataModel is the parameter catalog of one vendor/firmware family.
// Implementations are read-only after construction and safe to share
// between sessions.
type DataModel interface {
	// GetParameter returns the descriptor for name, false when unsupported
	GetParameter(name ParameterName) (Param, bool)
	// LoadParameters is the minimal set fetched to detect the device
	LoadParameters() []ParameterName
	// ParameterNames lists every scalar parameter eligible for sync.
	// Object containers and indexed names are excluded.
	ParameterNames() []ParameterName
	// NumberedParameterNames maps each indexed container to its sub-parameters
	NumberedParameterNames() map[ParameterName][]ParameterName
	// NumPlmns is the number of PLMN slots in the model
	NumPlmns() int
	// EnbTransforms are applied when writing a value to the device
	EnbTransforms() map[ParameterName]EnbTransform
	// MagmaTransforms are applied when reading a value from the device
	MagmaTransforms() map[ParameterName]MagmaTransform
	// NameForPath resolves a wire path back to its name
	NameForPath(path string) (ParameterName, bool)
}

// TransformForEnb converts a canonical value into a wire ParameterValue
func TransformForEnb(dm DataModel, name ParameterName, value any) (tr069.ParameterValue, error) {
	p, ok := dm.GetParameter(name)
	if !ok {
		return tr069.ParameterValue{}, fmt.Errorf("%s: %w", name, ErrUnsupportedParameter)
	}

	var (
		raw string
		err error
	)
	if t, ok := dm.EnbTransforms()[name]; ok {
		raw, err = t(value)
	} else {
		raw, err = FormatValue(p.Type, value)
	}
	if err != nil {
		return tr069.ParameterValue{}, fmt.Errorf("%s to enb: %v: %w", name, err, ErrTransform)
	}

	return tr069.ParameterValue{Name: p.Path, Type: XSDType(p.Type), Value: raw}, nil
}

// TransformForMagma converts a wire string into a canonical value
func TransformForMagma(dm DataModel, name ParameterName, raw string) (any, error) {
	p, ok := dm.GetParameter(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupportedParameter)
	}

	var (
		v   any
		err error
	)
	if t, ok := dm.MagmaTransforms()[name]; ok {
		v, err = t(raw)
	} else {
		v, err = ParseValue(p.Type, raw)
	}
	if err != nil {
		return nil, fmt.Errorf("%s from enb: %v: %w", name, err, ErrTransform)
	}
	return v, nil
}

// XSDType returns the wire type tag for a value type
func XSDType(t ValueType) string {
	switch t {
	case TypeBoolean:
		return tr069.TypeBoolean
	case TypeInt:
		return tr069.TypeInt
	default:
		return tr069.TypeString
	}
}

// ParseValue parses a wire string according to its declared type
func ParseValue(t ValueType, raw string) (any, error) {
	s := strings.TrimSpace(raw)
	switch t {
	case TypeBoolean:
		return ParseBool(s)
	case TypeInt:
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q", raw)
		}
		return n, nil
	case TypeString:
		return raw, nil
	default:
		return nil, fmt.Errorf("cannot parse value of type %s", t)
	}
}

// ParseBool accepts the boolean spellings devices use on the wire
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// FormatValue renders a canonical value as a wire string of the declared type
func FormatValue(t ValueType, v any) (string, error) {
	switch t {
	case TypeBoolean:
		b, err := ToBool(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case TypeInt:
		n, err := ToInt(v)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n), nil
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case fmt.Stringer:
			return x.String(), nil
		case int, int64, float64, bool:
			return fmt.Sprint(x), nil
		}
		return "", fmt.Errorf("cannot format %T as string", v)
	default:
		return "", fmt.Errorf("cannot format value of type %s", t)
	}
}

// ToBool coerces a canonical value to bool
func ToBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return ParseBool(x)
	case int:
		return x != 0, nil
	}
	return false, fmt.Errorf("cannot convert %T to bool", v)
}

// ToInt coerces a canonical value to int
func ToInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint32:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("non-integral value %v", x)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("invalid int %q", x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("cannot convert %T to int", v)
}

// ToFloat coerces a canonical numeric value to float64
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// ValuesEqual compares canonical values, treating numeric kinds as equal by value
func ValuesEqual(a, b any) bool {
	if fa, ok := ToFloat(a); ok {
		if fb, ok := ToFloat(b); ok {
			return math.Abs(fa-fb) < 1e-9
		}
		return false
	}
	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case nil:
		return b == nil
	}
	return false
}
