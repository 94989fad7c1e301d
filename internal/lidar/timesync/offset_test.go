package timesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffsetAtWraparoundInvariance(t *testing.T) {
	for _, ts := range []uint32{0, 12345, 3599999999} {
		for cam := 0; cam < 360; cam += 7 {
			for delta := int64(-AngleTolerance - 5); delta <= AngleTolerance+5; delta++ {
				a := int64(cam)*100 + delta
				if a < 0 {
					a += 36000
				}
				off1, ok1 := OffsetAt(a, ts, cam)
				off2, ok2 := OffsetAt(a+36000, ts, cam)
				assert.Equal(t, ok1, ok2, "cam %d az %d", cam, a)
				assert.Equal(t, off1, off2, "cam %d az %d", cam, a)
			}
		}
	}
}

func TestOffsetAt(t *testing.T) {
	tests := []struct {
		name    string
		azimuth int64
		ts      uint32
		cam     int
		want    int64
		ok      bool
	}{
		{"exact", 9000, 1234567, 90, 34567, true},
		{"ahead of camera", 9036, 1234567, 90, 34567 - 100, true},
		{"behind camera", 8964, 1234567, 90, 34567 + 100, true},
		{"at tolerance", 9050, 1000000, 90, 100000 - 138, true},
		{"outside tolerance", 9051, 1000000, 90, 0, false},
		{"across zero", 35990, 50, 0, 50 + 27, true},
		{"across zero other way", 10, 5, 0, 100000 + 5 - 27, true},
		{"opposite side", 27000, 0, 90, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := OffsetAt(tt.azimuth, tt.ts, tt.cam)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
				assert.GreaterOrEqual(t, got, int64(0))
				assert.Less(t, got, RotationInterval)
			}
		})
	}
}

func TestFoldHelpers(t *testing.T) {
	assert.Equal(t, int64(-10), foldAngle(35990))
	assert.Equal(t, int64(10), foldAngle(-35990))
	assert.Equal(t, int64(-18000), foldAngle(18000))
	assert.Equal(t, int64(0), foldAngle(36000))

	assert.Equal(t, int64(-100), foldCycle(99900, RotationInterval))
	assert.Equal(t, int64(100), foldCycle(-99900, RotationInterval))

	assert.Equal(t, int64(99999), wrap(-1, 100000))
	assert.Equal(t, int64(0), wrap(100000, 100000))
}
