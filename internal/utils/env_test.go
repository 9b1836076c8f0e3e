package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvNonNegFloat(t *testing.T) {
	cases := []struct {
		name string
		val  string
		want float64
	}{
		{"unset", "", 5},
		{"zero", "0", 0},
		{"value", "2.5", 2.5},
		{"negative", "-1", 5},
		{"garbage", "abc", 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("PARCEL_TEST_FLOAT", tc.val)
			assert.Equal(t, tc.want, EnvNonNegFloat("PARCEL_TEST_FLOAT", 5))
		})
	}
	t.Setenv("PARCEL_TEST_FLOAT", "0")
	assert.Equal(t, 5.0, EnvFloat("PARCEL_TEST_FLOAT", 5))
}
