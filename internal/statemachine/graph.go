package statemachine

import (
	"fmt"
	"time"

	"github.com/lte-gateway/enodebd/pkg/tr069"
)

// Common state names. Device families may add their own.
const (
	StateDisconnected           = "disconnected"
	StateUnexpectedInform       = "unexpected_inform"
	StateWaitEmpty              = "wait_empty"
	StateCheckOptionalParams    = "check_optional_params"
	StateGetTransientParams     = "get_transient_params"
	StateWaitGetTransientParams = "wait_get_transient_params"
	StateGetParams              = "get_params"
	StateWaitGetParams          = "wait_get_params"
	StateGetObjParams           = "get_obj_params"
	StateWaitGetObjParams       = "wait_get_obj_params"
	StateDeleteObjs             = "delete_objs"
	StateAddObjs                = "add_objs"
	StateSetParams              = "set_params"
	StateWaitSetParams          = "wait_set_params"
	StateReboot                 = "reboot"
	StateWaitReboot             = "wait_reboot"
	StateWaitPostRebootInform   = "wait_post_reboot_inform"
	StateWaitRebootDelay        = "wait_reboot_delay"
	StateWaitInform             = "wait_inform"
)

// Transition is the outcome of reading an inbound event
type Transition struct {
	// Next is the state to move to, empty to stay
	Next string
	// EndSession closes the exchange with an empty response
	EndSession bool
}

// Output is the outcome of asking a state for its outbound request
type Output struct {
	Request    *tr069.Request
	Next       string
	EndSession bool
}

// State is one node of a session graph
type State interface {
	// Read consumes an inbound event. It returns false when the event is not
	// valid in this state.
	Read(ev tr069.Event) (Transition, bool)
	// Get produces the outbound request for the exchange
	Get(ev tr069.Event) Output
	// Targets lists the states this state may move to
	Targets() []string
}

// Enterer is implemented by states with work to do on entry
type Enterer interface {
	Enter()
}

// Exiter is implemented by states with work to do on exit
type Exiter interface {
	Exit()
}

// StateConfig binds a state to its timeout
type StateConfig struct {
	State     State
	Timeout   time.Duration
	OnTimeout string

	// FixedDeadline keeps the deadline set on entry instead of extending it
	// on every handled event
	FixedDeadline bool
}

// Graph maps state names to their configuration
type Graph map[string]StateConfig

// Validate checks that every referenced state exists
func (g Graph) Validate() error {
	for _, required := range []string{StateDisconnected, StateUnexpectedInform} {
		if _, ok := g[required]; !ok {
			return fmt.Errorf("%w: missing state %q", ErrGraphConfiguration, required)
		}
	}
	for name, cfg := range g {
		if cfg.State == nil {
			return fmt.Errorf("%w: state %q has no implementation", ErrGraphConfiguration, name)
		}
		for _, target := range cfg.State.Targets() {
			if _, ok := g[target]; !ok {
				return fmt.Errorf("%w: %q references unknown state %q", ErrGraphConfiguration, name, target)
			}
		}
		if cfg.OnTimeout != "" {
			if _, ok := g[cfg.OnTimeout]; !ok {
				return fmt.Errorf("%w: %q times out to unknown state %q", ErrGraphConfiguration, name, cfg.OnTimeout)
			}
		}
	}
	return nil
}

// Timeouts configures how long a session may sit in a state
type Timeouts struct {
	// Response bounds the wait for a reply to an outbound request
	Response time.Duration `yaml:"response"`
	// Idle bounds the gap between two device-initiated sessions
	Idle time.Duration `yaml:"idle"`
	// PostRebootInform bounds the wait for the boot Inform after a reboot
	PostRebootInform time.Duration `yaml:"post_reboot_inform"`
	// RebootDelay is the settling time after the boot Inform
	RebootDelay time.Duration `yaml:"reboot_delay"`
}

// DefaultTimeouts returns the timeouts used when none are configured
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Response:         60 * time.Second,
		Idle:             15 * time.Minute,
		PostRebootInform: 10 * time.Minute,
		RebootDelay:      10 * time.Minute,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Response <= 0 {
		t.Response = d.Response
	}
	if t.Idle <= 0 {
		t.Idle = d.Idle
	}
	if t.PostRebootInform <= 0 {
		t.PostRebootInform = d.PostRebootInform
	}
	if t.RebootDelay <= 0 {
		t.RebootDelay = d.RebootDelay
	}
	return t
}
