package assert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotNil(t *testing.T) {
	var nilPtr *int
	one := 1

	require.Panics(t, func() { NotNil(nil) })
	require.Panics(t, func() { NotNil(nilPtr) })
	require.NotPanics(t, func() { NotNil(&one) })
	require.NotPanics(t, func() { NotNil(struct{}{}) })
}

func TestNotEmptyStr(t *testing.T) {
	require.Panics(t, func() { NotEmptyStr("") })
	require.NotPanics(t, func() { NotEmptyStr("x") })
}
