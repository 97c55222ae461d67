package pose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	p := Default()

	assert.Equal(t, 1.0, p.Orientation.W)
	assert.Equal(t, 0.05, p.Position.Z)
	assert.Zero(t, p.Position.X)
	assert.Zero(t, p.Position.Y)
}

func TestFromXYYaw(t *testing.T) {
	testCases := []struct {
		name string
		yaw  float64
	}{
		{name: "facing forward", yaw: 0},
		{name: "quarter turn left", yaw: math.Pi / 2},
		{name: "quarter turn right", yaw: -math.Pi / 2},
		{name: "almost reversed", yaw: 3.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := FromXYYaw(1.5, -2, tc.yaw)

			assert.Equal(t, 1.5, p.Position.X)
			assert.Equal(t, -2.0, p.Position.Y)
			assert.InDelta(t, tc.yaw, p.Yaw(), 1e-9)
		})
	}
}

func TestPlanarDistance(t *testing.T) {
	a := FromXYYaw(0, 0, 0)
	b := FromXYYaw(3, 4, 1)

	assert.InDelta(t, 5.0, a.PlanarDistance(b), 1e-9)
	assert.InDelta(t, 5.0, b.PlanarDistance(a), 1e-9)
}
