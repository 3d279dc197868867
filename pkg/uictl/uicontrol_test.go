package uictl_test

import (
	"testing"

	"github.com/alkime/callcoach/pkg/uictl"
	"github.com/stretchr/testify/assert"
)

func TestCapped(t *testing.T) {
	n := int64(0)
	d := uictl.Capped[int64](uictl.DialFunc[int64](func() int64 { return n }), 100)

	num, limit := d.Cap()
	assert.Equal(t, int64(0), num)
	assert.Equal(t, int64(100), limit)

	n = 40
	assert.Equal(t, int64(40), d.Read())
	assert.InDelta(t, 0.4, uictl.Ratio(d), 1e-9)

	n = 250
	assert.InDelta(t, 1.0, uictl.Ratio(d), 1e-9)
}

func TestRatio_Unbounded(t *testing.T) {
	d := uictl.Capped[float64](uictl.DialFunc[float64](func() float64 { return 12 }), 0)
	assert.Zero(t, uictl.Ratio(d))
}
