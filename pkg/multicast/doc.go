// Package multicast wraps a datagram socket with self-healing multicast
// group membership.
//
// Some network stacks silently drop group membership when the interface
// is re-associated or its addresses change. Conn keeps a record of the
// groups it should belong to and re-joins them periodically and on
// demand, retrying each join with exponential backoff. Reads and writes
// pass straight through to the underlying net.PacketConn.
package multicast
