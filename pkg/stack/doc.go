// Package stack orchestrates the operating mode of a device.
//
// A Stack owns no hardware. The embedder hands it Peripherals (flash
// partition, WiFi driver, BLE GATT server, link events, a UDP listener and
// a DNS-SD advertiser) and an interaction.Handler for its application
// clusters. The stack layers the network commissioning and fabric
// clusters on top of that handler and decides, from persisted state and
// connectivity events, which transport the protocol engine serves.
//
// # Modes
//
//	Uncommissioned --start--> Commissioning   (no credentials or fabric)
//	Uncommissioned --start--> Operating       (credentials, fabric, marker)
//	Commissioning  --complete--> Operating
//	Commissioning  --timeout-->  Commissioning (re-advertise)
//	Operating      --down-->     Reconnecting
//	Reconnecting   --up-->       Operating
//	any            --reset-->    Uncommissioned
//
// Next implements the table. Every other pair leaves the mode unchanged.
//
// While Commissioning the device advertises over BLE and serves the
// provisioning cluster on the BTP pipe. Devices without a WiFi driver
// commission on the IP network and announce a commissionable DNS-SD
// record instead. While Operating the engine serves a UDP socket that
// keeps the mDNS multicast groups joined, and one operational record per
// fabric is announced. A short link drop only pauses reports; a drop that
// outlasts Config.Debounce moves to Reconnecting, withdraws the
// operational records and re-associates with exponential backoff until
// the link is back. Sessions and subscriptions survive the loss.
//
// BLE and WiFi are claimed through a radio.Arbiter. Without concurrent
// radio support a ConnectNetwork received over BLE is answered by
// tearing the BLE pipe down before the station associates.
package stack
