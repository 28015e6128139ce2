package devices

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lte-gateway/enodebd/internal/datamodel"
	"github.com/lte-gateway/enodebd/internal/deviceconfig"
	sm "github.com/lte-gateway/enodebd/internal/statemachine"
)

// ErrUnknownDevice is returned when no device family matches
var ErrUnknownDevice = errors.New("unknown device")

// Device bundles what a session needs for one device family
type Device struct {
	Name          string
	Model         datamodel.DataModel
	PostProcessor deviceconfig.PostProcessor
	Graph         sm.GraphBuilder
}

type factory func() Device

var registry = map[string]factory{
	BaicellsOld: func() Device {
		return Device{
			Name:          BaicellsOld,
			Model:         NewBaicellsOldModel(),
			PostProcessor: baicellsOldPostProcessor{},
			Graph:         baicellsOldGraph,
		}
	},
}

// Baicells OUIs
var baicellsOUIs = map[string]bool{
	"48BF74": true,
	"34ED0B": true,
}

// First firmware that advertises cell reserved and cell barred correctly
var baicellsFixedVersion = [5]int{100, 1, 0, 110, 3}

var baiStationVersion = regexp.MustCompile(`^BaiStation_V(\d+)R(\d+)C(\d+)B(\d+)(?:SPC(\d+))?`)

// New returns the device family registered under name
func New(name string) (Device, error) {
	f, ok := registry[name]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
	return f(), nil
}

// Names lists the registered device families
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Detect picks the device family from the Inform's OUI and software version
func Detect(oui, swVersion string) (string, error) {
	if !baicellsOUIs[strings.ToUpper(strings.TrimSpace(oui))] {
		return "", fmt.Errorf("%w: oui %q", ErrUnknownDevice, oui)
	}
	v, ok := parseBaiStationVersion(swVersion)
	if !ok {
		return "", fmt.Errorf("%w: baicells firmware %q", ErrUnknownDevice, swVersion)
	}
	if versionLess(v, baicellsFixedVersion) {
		return BaicellsOld, nil
	}
	return "", fmt.Errorf("%w: baicells firmware %q has no registered model", ErrUnknownDevice, swVersion)
}

// NewMachine creates a session machine for the named device family
func NewMachine(name string, cfg sm.Config) (*sm.Machine, error) {
	d, err := New(name)
	if err != nil {
		return nil, err
	}
	cfg.DeviceName = d.Name
	cfg.Model = d.Model
	cfg.PostProcessor = d.PostProcessor
	return sm.NewMachine(cfg, d.Graph)
}

func parseBaiStationVersion(s string) ([5]int, bool) {
	var v [5]int
	m := baiStationVersion.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return v, false
	}
	for i := 0; i < 5; i++ {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return v, false
		}
		v[i] = n
	}
	return v, true
}

func versionLess(a, b [5]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func sortNames(names []datamodel.ParameterName) {
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
}
