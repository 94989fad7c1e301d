package timesync

import (
	"github.com/banshee-data/camsync/internal/lidar/parse"
)

const (
	// RotationInterval is one lidar revolution in µs (10 Hz).
	RotationInterval int64 = 100000

	// AngleTolerance is how close, in 0.01° units, a block azimuth must be
	// to a camera's mounting angle to count as facing it.
	AngleTolerance int64 = 50
)

// wrap reduces v into [0, m).
func wrap(v, m int64) int64 {
	v %= m
	if v < 0 {
		v += m
	}
	return v
}

// foldAngle maps an azimuth difference into [-18000, 18000).
func foldAngle(diff int64) int64 {
	half := int64(parse.RotationUnits / 2)
	return wrap(diff+half, parse.RotationUnits) - half
}

// foldCycle maps a cycle offset difference into [-interval/2, interval/2).
func foldCycle(diff, interval int64) int64 {
	half := interval / 2
	return wrap(diff+half, interval) - half
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// OffsetAt returns the time within the rotation cycle at which the beam
// crossed cameraDeg, given a block at azimuth (0.01°) stamped with
// timestamp (µs). ok is false when the block is not within AngleTolerance
// of the camera.
func OffsetAt(azimuth int64, timestamp uint32, cameraDeg int) (offset int64, ok bool) {
	diff := foldAngle(azimuth - int64(cameraDeg)*100)
	if abs64(diff) > AngleTolerance {
		return 0, false
	}
	offset = int64(timestamp) - RotationInterval*diff/parse.RotationUnits
	return wrap(offset, RotationInterval), true
}
