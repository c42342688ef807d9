// Package window implements the commissioning window.
//
// The window bounds how long the device accepts a new commissioner. The
// orchestrator opens it when entering Commissioning and re-opens it after
// each timeout, up to its configured number of attempts.
//
// # Window States
//
//   - CLOSED: not accepting commissioning
//   - OPEN: advertising and waiting for a commissioner
//   - IN_PROGRESS: a commissioner is connected
//
// A failed session returns the window to OPEN while time remains. Only one
// session may be in progress at a time.
package window
