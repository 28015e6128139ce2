package datamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexedNames(t *testing.T) {
	assert.Equal(t, ParameterName("PLMN 3"), PlmnN(3))
	assert.Equal(t, ParameterName("PLMN 2 PLMNID"), PlmnNPlmnID(2))

	family, i, ok := ParseIndexed("PLMN 12 cell reserved")
	require.True(t, ok)
	assert.Equal(t, PlmnNCellReservedFamily, family)
	assert.Equal(t, 12, i)

	family, i, ok = ParseIndexed(PlmnN(4))
	require.True(t, ok)
	assert.Equal(t, PlmnNFamily, family)
	assert.Equal(t, 4, i)

	for _, name := range []ParameterName{Plmn, NumPlmns, CellBarred, "PLMN 0 enable", "PLMN x"} {
		assert.False(t, IsIndexed(name), name)
	}
}

func TestBuildIndexedParameters(t *testing.T) {
	base := IndexedParam{
		Family:     PlmnNEnableFamily,
		PathFormat: "Device.PLMNList.%d.Enable",
		IsOptional: true,
		Type:       TypeBoolean,
	}
	out := BuildIndexedParameters(base, 3)
	require.Len(t, out, 3)
	for i, np := range out {
		assert.Equal(t, PlmnNEnable(i+1), np.Name)
		assert.Equal(t, TypeBoolean, np.Param.Type)
		assert.True(t, np.Param.IsOptional)
	}
	assert.Equal(t, "Device.PLMNList.2.Enable", out[1].Param.Path)

	again := BuildIndexedParameters(base, 3)
	assert.Equal(t, out, again)
	assert.Empty(t, BuildIndexedParameters(base, 0))
}

func TestParseAndFormatValue(t *testing.T) {
	v, err := ParseValue(TypeBoolean, "1")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = ParseValue(TypeInt, " 36001 ")
	require.NoError(t, err)
	assert.Equal(t, 36001, v)

	_, err = ParseValue(TypeInt, "abc")
	assert.Error(t, err)
	_, err = ParseValue(TypeObject, "")
	assert.Error(t, err)

	s, err := FormatValue(TypeInt, 20.0)
	require.NoError(t, err)
	assert.Equal(t, "20", s)

	_, err = FormatValue(TypeInt, 20.5)
	assert.Error(t, err)

	s, err = FormatValue(TypeBoolean, "true")
	require.NoError(t, err)
	assert.Equal(t, "true", s)

	s, err = FormatValue(TypeString, 36412)
	require.NoError(t, err)
	assert.Equal(t, "36412", s)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(20, 20.0))
	assert.True(t, ValuesEqual("a", "a"))
	assert.True(t, ValuesEqual(false, false))
	assert.False(t, ValuesEqual(true, "true"))
	assert.False(t, ValuesEqual(1, "1"))
	assert.False(t, ValuesEqual(nil, false))
}
