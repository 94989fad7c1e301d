// Package timesync recovers GPS time from a lidar's packet stream and keeps
// each camera's hardware trigger aligned with the moment the lidar beam
// sweeps across it.
//
// One Engine exists per lidar and is driven by a single goroutine. The
// engine keeps an absolute base epoch anchored at the start of the lidar's
// rollover period (one hour for Velodyne, one second for Pandar) and
// advances it as the rolling microsecond counter wraps. Calendar fields
// decoded from positioning data confirm, defer or replace that base.
package timesync
