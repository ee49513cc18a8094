package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainPackage  = "rulepack/package/v1"
	DomainArtifact = "rulepack/artifact/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PackageDigest computes the content digest of a package manifest.
// Two packages with equal manifests have equal digests regardless of the
// order in which their artifacts were added.
func PackageDigest(manifest Object) (string, error) {
	canonical, err := MarshalCanonical(manifest)
	if err != nil {
		return "", fmt.Errorf("PackageDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPackage, canonical), nil
}

// ArtifactDigest computes the digest of a compiled artifact.
// The class name is part of the digest so identical code under two
// generated names stays distinguishable.
func ArtifactDigest(className string, code []byte) string {
	data := make([]byte, 0, len(className)+1+len(code))
	data = append(data, className...)
	data = append(data, 0x00)
	data = append(data, code...)
	return hashWithDomain(DomainArtifact, data)
}
