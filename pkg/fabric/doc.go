// Package fabric keeps the device's fabric memberships and access control
// list and exposes them through the root Operational Credentials and
// Access Control clusters.
//
// A device can belong to up to DefaultMaxFabrics fabrics. Each membership
// is admitted by an AddNOC command at the end of commissioning. The
// certificate chain itself is opaque here: the table stores it as a blob
// next to the identifiers the protocol engine extracted from it.
//
// # Persistence
//
// The table is committed to the nvs store on every change, under the
// fabrics and acls keys. A failed commit leaves both the stored and the
// in-memory table unchanged.
package fabric
