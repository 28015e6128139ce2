package deviceconfig

import (
	"github.com/lte-gateway/enodebd/internal/datamodel"
)

// ObjectsToDelete lists instances present on the device but not desired,
// highest instance first so lower instance numbers stay stable.
func ObjectsToDelete(desired, current *Configuration) []datamodel.ParameterName {
	var out []datamodel.ParameterName
	for _, name := range current.ObjectNames() {
		if !desired.HasObject(name) {
			out = append(out, name)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ObjectsToAdd lists desired instances missing on the device, lowest first
func ObjectsToAdd(desired, current *Configuration) []datamodel.ParameterName {
	var out []datamodel.ParameterName
	for _, name := range desired.ObjectNames() {
		if !current.HasObject(name) {
			out = append(out, name)
		}
	}
	return out
}

// ParamValuesToSet returns the desired values differing from the device.
// Sub-parameters of objects the device does not have yet are left out, as
// are names skip excludes, such as optional parameters the device lacks.
func ParamValuesToSet(desired, current *Configuration, skip func(datamodel.ParameterName) bool) map[datamodel.ParameterName]any {
	out := make(map[datamodel.ParameterName]any)
	for _, name := range desired.ParameterNames() {
		if skip != nil && skip(name) {
			continue
		}
		if family, i, ok := datamodel.ParseIndexed(name); ok && family != datamodel.PlmnNFamily {
			if !current.HasObject(datamodel.PlmnN(i)) {
				continue
			}
		}
		want, _ := desired.GetParameter(name)
		have, ok := current.GetParameter(name)
		if ok && datamodel.ValuesEqual(want, have) {
			continue
		}
		out[name] = want
	}
	return out
}

// ParamsToGet lists the sync parameters the device configuration lacks.
// skip excludes names that should not be requested, such as optional
// parameters the device does not have.
func ParamsToGet(current *Configuration, skip func(datamodel.ParameterName) bool) []datamodel.ParameterName {
	dm := current.Model()
	var out []datamodel.ParameterName
	for _, name := range dm.ParameterNames() {
		if skip != nil && skip(name) {
			continue
		}
		if !current.HasParameter(name) {
			out = append(out, name)
		}
	}
	return out
}

// ObjectParamsToGet lists sub-parameters of existing instances not read yet
func ObjectParamsToGet(current *Configuration) []datamodel.ParameterName {
	numbered := current.Model().NumberedParameterNames()
	var out []datamodel.ParameterName
	for _, obj := range current.ObjectNames() {
		for _, sub := range numbered[obj] {
			if !current.HasParameter(sub) {
				out = append(out, sub)
			}
		}
	}
	return out
}

// InSync reports whether the device matches the desired configuration,
// ignoring the names skip excludes
func InSync(desired, current *Configuration, skip func(datamodel.ParameterName) bool) bool {
	return len(ObjectsToDelete(desired, current)) == 0 &&
		len(ObjectsToAdd(desired, current)) == 0 &&
		len(ParamValuesToSet(desired, current, skip)) == 0
}
