package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var plmnIDPattern = regexp.MustCompile(`^[0-9]{5,6}$`)

// Channel bandwidths an LTE cell can be configured with, in MHz
var bandwidthsMhz = []float64{1.4, 3, 5, 10, 15, 20}

// Validator validates structs
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator with the eNodeB specific rules registered
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names so errors line up with request bodies
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("plmnid", func(fl validator.FieldLevel) bool {
		return plmnIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("bandwidth", func(fl validator.FieldLevel) bool {
		var mhz float64
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			mhz = fl.Field().Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			mhz = float64(fl.Field().Int())
		default:
			return false
		}
		for _, b := range bandwidthsMhz {
			if math.Abs(b-mhz) < 1e-6 {
				return true
			}
		}
		return false
	})

	return &Validator{validate: v}
}

// Validate validates a struct
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// Var validates a single value against tag, reporting it under name
func (v *Validator) Var(name string, value interface{}, tag string) error {
	err := v.validate.Var(value, tag)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	return fmt.Errorf("validation failed: %s", message(name, fieldErrs[0]))
}

func describe(fe validator.FieldError) string {
	field := strings.SplitN(fe.Namespace(), ".", 2)
	name := fe.Namespace()
	if len(field) == 2 {
		name = field[1]
	}
	return message(name, fe)
}

func message(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "min":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	case "plmnid":
		return fmt.Sprintf("%s must be a 5 or 6 digit PLMN id", name)
	case "bandwidth":
		return fmt.Sprintf("%s must be one of 1.4, 3, 5, 10, 15, 20 MHz", name)
	case "ip":
		return fmt.Sprintf("%s must be an IP address", name)
	}
	return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
}
