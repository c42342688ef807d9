// Package examples provides application clusters for reference devices
// built on the stack package.
//
// Light serves the On/Off and Level Control clusters on endpoint 1. Its
// Handler is passed to stack.Stack.Run, and its OnChange hook is wired to
// stack.Stack.NotifyChanged so subscribers hear about state changes made
// locally.
package examples
