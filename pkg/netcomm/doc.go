// Package netcomm implements the WiFi Network Commissioning cluster.
//
// Commissioners use the cluster to scan for access points, stage
// credentials and ask the device to join. Credentials are staged in memory
// by AddOrUpdateWiFiNetwork and only committed to the nvs store after the
// Driver reports a successful association; a failed join never touches the
// previously stored credentials.
//
// Devices that cannot run the short-range commissioning radio and WiFi at
// the same time construct the cluster with Concurrent set to false. In that
// mode ConnectNetwork only records the request and blocks; the owner reads
// it from ConnectRequested, releases the radio and calls Join.
package netcomm
