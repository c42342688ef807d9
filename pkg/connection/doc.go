// Package connection keeps the long-range network link associated.
//
// Backoff computes bounded exponential delays:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until successful
//  5. Reset to 1s on success
//
// with up to 25% jitter added so devices on a shared access point do not
// retry in lockstep after a power cut:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// Manager applies that schedule to association attempts and never gives
// up; only its context ends the loop. Retry applies the same schedule with
// an attempt cap for operations such as multicast group joins.
//
// All waiting goes through an injected k8s.io/utils/clock so tests drive
// time with a fake clock.
package connection
