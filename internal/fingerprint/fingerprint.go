// Package fingerprint derives deterministic cache keys for units of work sent to
// external generation services.
//
// A WorkUnit is serialized into a canonical, field-tagged, length-prefixed byte
// stream and hashed with SHA-256. Field order is fixed here, and Params are
// emitted sorted by key, so two units with equal fields always share a key and a
// change to any single field produces a different one.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"
)

// Stage identifies the external collaborator a unit of work is sent to.
type Stage string

const (
	StageResearch   Stage = "research"
	StageDialogue   Stage = "dialogue"
	StageTransform  Stage = "transform"
	StageSynthesize Stage = "synthesize"
)

// Stages lists every stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageResearch, StageDialogue, StageTransform, StageSynthesize}
}

// ParseStage validates a stage name.
func ParseStage(value string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(value)))
	switch stage {
	case StageResearch, StageDialogue, StageTransform, StageSynthesize:
		return stage, nil
	}
	return "", fmt.Errorf("unknown stage %q", value)
}

// CostTier selects model and voice quality.
type CostTier string

const (
	TierEconomy  CostTier = "economy"
	TierStandard CostTier = "standard"
	TierPremium  CostTier = "premium"
)

// ParseCostTier validates a tier name.
func ParseCostTier(value string) (CostTier, error) {
	tier := CostTier(strings.ToLower(strings.TrimSpace(value)))
	switch tier {
	case TierEconomy, TierStandard, TierPremium:
		return tier, nil
	}
	return "", fmt.Errorf("unknown cost tier %q", value)
}

// WorkUnit is a fully specified request to one external stage. Treat it as an
// immutable value; Params is copied by the builder before use.
type WorkUnit struct {
	Stage           Stage
	Topic           string
	Language        string
	CostTier        CostTier
	InputsDigest    string
	TemplateVersion int
	VoiceID         string
	Params          map[string]string
}

// Fingerprint is the lowercase hex SHA-256 key of a WorkUnit.
type Fingerprint string

func (f Fingerprint) String() string { return string(f) }

// Short returns an abbreviated form for logs and tables.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}

// Builder computes fingerprints. Namespace identifies the serialization
// revision; changing it invalidates every key.
type Builder struct {
	Namespace string
}

// NewBuilder returns a builder for the given namespace.
func NewBuilder(namespace string) Builder {
	return Builder{Namespace: namespace}
}

// Build returns the fingerprint for unit. It never fails and performs no I/O.
func (b Builder) Build(unit WorkUnit) Fingerprint {
	h := sha256.New()
	writeField(h, 'N', b.Namespace)
	writeField(h, 'S', string(unit.Stage))
	writeField(h, 'T', unit.Topic)
	writeField(h, 'L', unit.Language)
	writeField(h, 'C', string(unit.CostTier))
	writeField(h, 'I', unit.InputsDigest)
	writeField(h, 'V', fmt.Sprintf("%d", unit.TemplateVersion))
	writeField(h, 'O', unit.VoiceID)

	keys := make([]string, 0, len(unit.Params))
	for k := range unit.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeCount(h, 'P', len(keys))
	for _, k := range keys {
		writeField(h, 'k', k)
		writeField(h, 'v', unit.Params[k])
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// writeField emits tag, big-endian length, then value so that no two distinct
// field sequences share a byte encoding.
func writeField(h hash.Hash, tag byte, value string) {
	var header [9]byte
	header[0] = tag
	binary.BigEndian.PutUint64(header[1:], uint64(len(value)))
	h.Write(header[:])
	h.Write([]byte(value))
}

func writeCount(h hash.Hash, tag byte, n int) {
	var header [9]byte
	header[0] = tag
	binary.BigEndian.PutUint64(header[1:], uint64(n))
	h.Write(header[:])
}
