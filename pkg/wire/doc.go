// Package wire defines the CBOR envelope exchanged between the device's
// interaction engine and its controllers.
//
// Every message is a single Message value with integer keys. Requests
// carry an opcode and a path, responses echo the exchange id with a
// status, and reports carry a subscription id instead of an exchange id.
// Payloads stay as raw CBOR so each cluster decodes its own argument and
// response types.
//
// # Nullable vs Absent
//
// An empty payload means "no value"; an encoded CBOR null means the
// attribute is explicitly null.
package wire
