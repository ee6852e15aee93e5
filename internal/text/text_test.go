package text

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	cases := []struct {
		Name     string
		Expected File
		Actual   File
		Contains []string
	}{
		{
			Name:     "identical",
			Expected: File{Name: "a", Content: "replicas: 1\n"},
			Actual:   File{Name: "b", Content: "replicas: 1\n"},
		},
		{
			Name:     "changed line",
			Expected: File{Name: "local", Content: "name: dax-imgserv\nreplicas: 1\n"},
			Actual:   File{Name: "live", Content: "name: dax-imgserv\nreplicas: 3\n"},
			Contains: []string{"--- local\n+++ live\n", " name: dax-imgserv\n", "-replicas: 1\n", "+replicas: 3\n"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			diff := Diff(tc.Expected, tc.Actual, 3)
			require.Equal(t, diff, Differ(false)(tc.Expected, tc.Actual, 3))

			if len(tc.Contains) == 0 {
				require.Empty(t, diff)
				return
			}
			for _, fragment := range tc.Contains {
				require.Contains(t, diff, fragment)
			}
		})
	}
}
