package deviceconfig

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lte-gateway/enodebd/internal/datamodel"
)

// PostProcessor applies a device-specific correction to a desired
// configuration before it is diffed against the device. Implementations must
// be idempotent and must only look at the desired configuration.
type PostProcessor interface {
	Postprocess(desired *Configuration)
}

// Plmn is one entry of the desired PLMN list
type Plmn struct {
	PlmnID       string `json:"plmnId" yaml:"plmn_id" validate:"required,plmnid"`
	Enable       bool   `json:"enable" yaml:"enable"`
	Primary      bool   `json:"primary" yaml:"primary"`
	CellReserved bool   `json:"cellReserved" yaml:"cell_reserved"`
}

// Desired is the vendor-neutral desired state handed over by the northbound side
type Desired struct {
	Values map[datamodel.ParameterName]any
	Plmns  []Plmn
}

// BuildDesired turns a vendor-neutral desired state into a configuration for
// one data model. Names the model does not support are skipped.
func BuildDesired(dm datamodel.DataModel, d Desired, pp PostProcessor) (*Configuration, error) {
	cfg := New(dm)

	for name, v := range d.Values {
		if err := cfg.SetParameter(name, v); err != nil {
			if errors.Is(err, datamodel.ErrUnsupportedParameter) {
				log.Debug().Str("param", string(name)).Msg("desired parameter not supported by device, skipped")
				continue
			}
			return nil, fmt.Errorf("build desired config: %w", err)
		}
	}

	plmns := d.Plmns
	if len(plmns) > dm.NumPlmns() {
		log.Warn().
			Int("requested", len(plmns)).
			Int("slots", dm.NumPlmns()).
			Msg("more PLMNs than the device supports, extra entries dropped")
		plmns = plmns[:dm.NumPlmns()]
	}
	for idx, p := range plmns {
		i := idx + 1
		if err := cfg.AddObject(datamodel.PlmnN(i)); err != nil {
			return nil, fmt.Errorf("build desired config: %w", err)
		}
		subs := map[datamodel.ParameterName]any{
			datamodel.PlmnNCellReserved(i): p.CellReserved,
			datamodel.PlmnNEnable(i):       p.Enable,
			datamodel.PlmnNPrimary(i):      p.Primary,
			datamodel.PlmnNPlmnID(i):       p.PlmnID,
		}
		for name, v := range subs {
			if err := cfg.SetParameter(name, v); err != nil && !errors.Is(err, datamodel.ErrUnsupportedParameter) {
				return nil, fmt.Errorf("build desired config: %w", err)
			}
		}
	}

	if pp != nil {
		pp.Postprocess(cfg)
	}
	return cfg, nil
}
