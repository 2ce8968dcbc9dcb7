package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	bangalore := Point{Latitude: 12.9716, Longitude: 77.5946}

	cases := []struct {
		name   string
		a, b   Point
		want   float64
		within float64
	}{
		{name: "same point", a: bangalore, b: bangalore, want: 0, within: 1e-9},
		{name: "50m north", a: bangalore, b: OffsetNorth(bangalore, 50), want: 50, within: 0.01},
		{name: "150m north", a: bangalore, b: OffsetNorth(bangalore, 150), want: 150, within: 0.01},
		{name: "one degree of latitude", a: Point{0, 0}, b: Point{1, 0}, want: 111194.93, within: 1},
		{name: "antipodes", a: Point{0, 0}, b: Point{0, 180}, want: math.Pi * EarthRadiusMeters, within: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, Distance(tc.a, tc.b), tc.within)
		})
	}
}

func TestDistanceIsSymmetric(t *testing.T) {
	a := Point{Latitude: 51.5007, Longitude: -0.1246}
	b := Point{Latitude: 40.6892, Longitude: -74.0445}
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-6)
}

func TestWithin(t *testing.T) {
	center := Point{Latitude: 12.9716, Longitude: 77.5946}
	assert.True(t, Within(center, OffsetNorth(center, 79.9), 80))
	assert.False(t, Within(center, OffsetNorth(center, 80.5), 80))
}
