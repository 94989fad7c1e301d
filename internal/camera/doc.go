// Package camera holds per-camera trigger state and the interfaces to the
// two hardware primitives the sync engine depends on: the trigger-delay
// register and the sensor capability query. Real implementations (FPGA
// register access, V4L2 controls) live outside this module; DryRun is an
// in-memory stand-in.
package camera
