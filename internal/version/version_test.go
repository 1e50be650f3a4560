package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	require.Equal(t, VERSION, Version{}.String())
	require.Equal(t, VERSION+"-20240301-012345678-dirty", Version{
		Commit: "0123456789abcdef",
		Date:   "20240301",
		Dirty:  true,
		Valid:  true,
	}.String())
	require.Regexp(t, `^v\d+\.\d+\.\d+$`, VERSION)
}
