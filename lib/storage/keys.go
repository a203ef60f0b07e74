// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a fresh unique entity ID for accounts, apps,
// deployments, and access keys.
func NewID() string {
	return uuid.NewString()
}

const (
	keyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// DeploymentKeyLength is the length of generated deployment keys
	// and access-key names.
	DeploymentKeyLength = 37
)

// GenerateKey returns a random token drawn from [0-9A-Za-z], suitable
// for deployment keys and access-key names. Uses crypto/rand with
// rejection sampling so every character is uniform.
func GenerateKey() (string, error) {
	key := make([]byte, 0, DeploymentKeyLength)
	buffer := make([]byte, DeploymentKeyLength*2)
	for len(key) < DeploymentKeyLength {
		if _, err := rand.Read(buffer); err != nil {
			return "", fmt.Errorf("reading randomness for key: %w", err)
		}
		for _, b := range buffer {
			// 248 is the largest multiple of len(keyAlphabet) that
			// fits in a byte; values at or above it would bias the
			// low characters.
			if b >= 248 {
				continue
			}
			key = append(key, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(key) == DeploymentKeyLength {
				break
			}
		}
	}
	return string(key), nil
}
