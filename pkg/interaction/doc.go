// Package interaction implements the request/response boundary between the
// device and its controllers.
//
// The model defines four operations:
//
//   - Read: Get the current value of an attribute
//   - Write: Replace the value of an attribute
//   - Subscribe: Register for reports when an attribute changes
//   - Invoke: Execute a cluster command
//
// # Handlers
//
// Clusters implement Handler. Handlers are composed with Chain, which
// routes a path to the first handler registered for its endpoint and
// cluster and falls through to the next one otherwise:
//
//	h := interaction.NewChain(0, netcomm.ClusterID, provisioning,
//	    interaction.NewChain(0, fabric.OperationalCredentialsID, creds,
//	        interaction.NewChain(1, OnOffID, app, interaction.Empty)))
//
// # Engine
//
// The Engine serves requests from one or more Transports. It bounds the
// number of exchanges in flight and answers BUSY when the bound is reached.
// Subscriptions belong to the engine, not to a transport, so a transport
// that is torn down and attached again (for example after an address
// change) keeps reporting to the same subscribers.
//
// # Client
//
// The Client is the controller side of the same exchange and is used by
// host simulations and tests.
package interaction
