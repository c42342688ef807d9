// Package discovery publishes the device's DNS-SD records.
//
// A device is discoverable through two mDNS service types:
//
// # Commissionable Discovery (_matterc._udp)
//
// Published while the device is in commissioning mode. The instance name
// is a random 64-bit value rendered as 16 uppercase hex digits, chosen once
// and persisted so the device keeps its identity across reboots.
// TXT records include: D (discriminator), CM (commissioning mode),
// VP (vendor+product), and optionally DT, DN, SII, SAI and PH.
// Subtypes _L<discriminator>, _S<short discriminator>, _V<vendor> and _CM
// let commissioners filter without resolving every instance.
//
// # Operational Discovery (_matter._tcp)
//
// Published for each fabric the device belongs to while it is operating.
// Instance name format: <compressed-fabric-id>-<node-id>, both as 16
// uppercase hex digits. TXT records include SII, SAI and T.
//
// # Onboarding Payload
//
// The 11-digit manual pairing code combines the short discriminator and
// the setup passcode with a Verhoeff check digit.
//
// The Manager tracks what is currently published so that republishing an
// identical record is a no-op and records can be withdrawn and published
// again without restarting the responder.
package discovery
