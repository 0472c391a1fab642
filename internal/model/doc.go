// Package model defines the shared data model of the simulator: the
// attribute value sum type, patient snapshots, the closed set of clinical
// events, the effect sum type consumed by the kernel, and the flat event
// records produced by the module runtime.
//
// Everything here is plain data. Behavior lives in internal/kernel and
// internal/modules.
package model
