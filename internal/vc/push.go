package vc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	MetadataCheckpoints = "checkpoints"
	MetadataLog         = "log"
)

// CheckpointBundle is the vault content uploaded for one checkpoint: the
// checkpoint itself and every operation record it references.
type CheckpointBundle struct {
	Checkpoint *Checkpoint `json:"checkpoint"`
	Operations []Operation `json:"operations"`
}

// CheckpointManifestEntry maps a checkpoint to the checksum of its bundle.
type CheckpointManifestEntry struct {
	ID       string `json:"id"`
	Checksum string `json:"checksum"`
}

// PushResult reports what Push uploaded.
type PushResult struct {
	Bundles          int
	CheckpointsSent  bool
	LogSent          bool
	CheckpointsCount int
}

// Push uploads checkpoint bundles, the checkpoint manifest, and the
// operation log to the vault under projectID. Metadata whose remote version
// is already at least the local version is skipped. Bundles are content
// addressed, so re-uploading an unchanged one is harmless.
func (s *Service) Push(projectID string) (*PushResult, error) {
	if s.deps.Vault == nil {
		return nil, fmt.Errorf("vault: %w", ErrUnavailable)
	}
	vault := s.deps.Vault

	s.mu.Lock()
	defer s.mu.Unlock()

	cps, err := s.deps.Store.ListCheckpoints()
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}
	entries, err := s.deps.Store.LoadLog()
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	idx, err := s.deps.Store.Index()
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}

	result := &PushResult{CheckpointsCount: len(cps)}

	remote, err := vault.GetMetadataVersion(projectID, MetadataCheckpoints)
	if err != nil {
		return nil, fmt.Errorf("reading remote checkpoint version: %w", err)
	}
	if remote < int64(len(cps)) {
		manifest := make([]CheckpointManifestEntry, 0, len(cps))
		for _, cp := range cps {
			sum, err := s.putBundleLocked(vault, cp)
			if err != nil {
				return result, err
			}
			result.Bundles++
			manifest = append(manifest, CheckpointManifestEntry{ID: cp.ID, Checksum: sum})
		}
		if err := putJSONMetadata(vault, projectID, MetadataCheckpoints, manifest, int64(len(cps))); err != nil {
			return result, err
		}
		result.CheckpointsSent = true
	} else {
		s.deps.Logger.Debug("checkpoints already current", "vault", vault.Name(), "remote", remote)
	}

	remote, err = vault.GetMetadataVersion(projectID, MetadataLog)
	if err != nil {
		return result, fmt.Errorf("reading remote log version: %w", err)
	}
	if remote < idx.LastOperationID {
		if err := putJSONMetadata(vault, projectID, MetadataLog, entries, idx.LastOperationID); err != nil {
			return result, err
		}
		result.LogSent = true
	} else {
		s.deps.Logger.Debug("log already current", "vault", vault.Name(), "remote", remote)
	}

	s.deps.Logger.Info("push finished", "vault", vault.Name(), "project", projectID,
		"bundles", result.Bundles, "checkpoints", result.CheckpointsSent, "log", result.LogSent)
	return result, nil
}

func (s *Service) putBundleLocked(vault Vault, cp *Checkpoint) (string, error) {
	bundle := CheckpointBundle{Checkpoint: cp, Operations: make([]Operation, 0, len(cp.Operations))}
	for _, ref := range cp.Operations {
		op, err := s.deps.Store.LoadOperation(ref)
		if err != nil {
			return "", fmt.Errorf("loading %s for checkpoint %s: %w", ref, cp.ID, err)
		}
		bundle.Operations = append(bundle.Operations, op)
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("encoding checkpoint %s: %w", cp.ID, err)
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	if err := vault.PutContent(checksum, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", fmt.Errorf("uploading checkpoint %s: %w", cp.ID, err)
	}
	return checksum, nil
}

func putJSONMetadata(vault Vault, projectID, name string, v any, version int64) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := vault.PutMetadata(projectID, name, bytes.NewReader(data), int64(len(data)), version); err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	return nil
}
