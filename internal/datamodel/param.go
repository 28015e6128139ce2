package datamodel

import (
	"fmt"
	"strings"
)

// ValueType is the declared type of a parameter on the device
type ValueType int

const (
	TypeBoolean ValueType = iota
	TypeInt
	TypeString
	TypeObject
)

func (t ValueType) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// Param describes how one ParameterName maps onto a device's management tree
type Param struct {
	Path       string
	IsOptional bool
	Type       ValueType
	IsInvasive bool
}

// IsObject reports whether the path denotes a container rather than a leaf
func (p Param) IsObject() bool {
	return p.Type == TypeObject || strings.HasSuffix(p.Path, ".")
}

// NamedParam pairs a name with its descriptor
type NamedParam struct {
	Name  ParameterName
	Param Param
}

// IndexedParam is the template for one indexed family. PathFormat takes the
// instance number the same way the Family name does.
type IndexedParam struct {
	Family     ParameterName
	PathFormat string
	IsOptional bool
	Type       ValueType
	IsInvasive bool
}

// BuildIndexedParameters expands base for instances 1..count
func BuildIndexedParameters(base IndexedParam, count int) []NamedParam {
	out := make([]NamedParam, 0, count)
	for i := 1; i <= count; i++ {
		out = append(out, NamedParam{
			Name: Indexed(base.Family, i),
			Param: Param{
				Path:       fmt.Sprintf(base.PathFormat, i),
				IsOptional: base.IsOptional,
				Type:       base.Type,
				IsInvasive: base.IsInvasive,
			},
		})
	}
	return out
}
