// Package nvs persists the device's durable state in a flash-style
// key/value partition.
//
// A Partition is the vendor storage primitive: opaque blobs addressed by
// namespace and a short key. Store scopes a partition to the reserved
// "matter" namespace and serializes writers. Every Set and Delete is
// committed before it returns; there is no write-back cache, so a power
// cut can never roll credentials back behind the caller's back.
//
// Three partitions are provided: MemoryPartition for tests and
// simulation, FilePartition (one fsynced file per key, guarded by an
// advisory lock) and SQLitePartition (a single database with
// synchronous=FULL).
package nvs
