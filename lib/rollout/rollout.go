// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package rollout decides whether a staged package should be served to
// a specific client instance.
//
// A package with a rollout percentage is visible to only that share of
// the fleet. The decision must be stable: the same client polling the
// same deployment gets the same answer until the percentage changes,
// and a client inside the rollout at 30% stays inside when the rollout
// widens to 60%. Both properties fall out of hashing the client into a
// fixed bucket in [0,100) and comparing the bucket to the percentage.
package rollout

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// bucketDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// rollout buckets. The byte values are the ASCII encoding of the
// domain name, zero-padded to 32 bytes, so the key is inspectable in
// hex dumps. Changing it reshuffles every client's bucket.
var bucketDomainKey = [32]byte{
	'u', 'p', 'd', 'r', 'a', 'f', 't', '.', 'r', 'o', 'l', 'l', 'o', 'u', 't', '.',
	'b', 'u', 'c', 'k', 'e', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Bucket maps a client to its stable rollout bucket in [0,100) for one
// deployment. The deployment key is part of the input so a device's
// position in one deployment's rollout says nothing about its position
// in another's.
func Bucket(deploymentKey, clientIdentity string) int {
	hasher, err := blake3.NewKeyed(bucketDomainKey[:])
	if err != nil {
		// NewKeyed fails only for wrong key length, which the array
		// type rules out.
		panic("rollout: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(deploymentKey))
	hasher.Write([]byte{':'})
	hasher.Write([]byte(clientIdentity))
	digest := hasher.Sum(nil)
	return int(binary.BigEndian.Uint64(digest[:8]) % 100)
}

// IsEligible reports whether a client should be served a package with
// the given rollout percentage. A nil rollout means fully rolled out:
// always eligible. Percentages of 100 or more admit everyone.
func IsEligible(deploymentKey, clientIdentity string, rollout *int) bool {
	if rollout == nil || *rollout >= 100 {
		return true
	}
	return Bucket(deploymentKey, clientIdentity) < *rollout
}
