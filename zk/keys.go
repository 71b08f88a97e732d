package zk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/vocdoni/wispy/circuits"
	"github.com/vocdoni/wispy/log"
	"github.com/vocdoni/wispy/types"
)

// LocalSetup runs the Groth16 setup of a circuit the first time its keys
// are needed and keeps them in the artifacts cache, with an index file per
// kind pointing to them. The relay uses it and serves the keys to members.
type LocalSetup struct {
	// Dir holds the index files, defaults to circuits.BaseDir.
	Dir string
}

func (s *LocalSetup) indexPath(kind types.Kind) string {
	dir := s.Dir
	if dir == "" {
		dir = circuits.BaseDir
	}
	return filepath.Join(dir, fmt.Sprintf("%s.keys.json", kind))
}

// Keys implements KeyProvider.
func (s *LocalSetup) Keys(ctx context.Context, kind types.Kind, ccs constraint.ConstraintSystem) (*circuits.CircuitArtifacts, error) {
	path := s.indexPath(kind)
	if data, err := os.ReadFile(path); err == nil {
		index := &types.CircuitManifest{}
		if err := json.Unmarshal(data, index); err != nil {
			return nil, fmt.Errorf("invalid key index %s: %w", path, err)
		}
		artifacts := circuits.NewCircuitArtifacts(kind,
			&circuits.Artifact{Hash: index.ProvingKeyHash},
			&circuits.Artifact{Hash: index.VerifyingKeyHash})
		err := artifacts.LoadAll(ctx)
		if err == nil {
			return artifacts, nil
		}
		log.Warnw("cached keys not usable, running setup again", "kind", kind.String(), "error", err)
	}

	log.Infow("running groth16 setup", "kind", kind.String(), "constraints", ccs.GetNbConstraints())
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup: %w", err)
	}
	pkBytes, err := circuits.EncodeProvingKey(pk)
	if err != nil {
		return nil, err
	}
	vkBytes, err := circuits.EncodeVerifyingKey(vk)
	if err != nil {
		return nil, err
	}
	index := &types.CircuitManifest{Kind: kind, Backend: Groth16Name, Constraints: ccs.GetNbConstraints()}
	if index.ProvingKeyHash, err = circuits.StoreArtifact(pkBytes); err != nil {
		return nil, err
	}
	if index.VerifyingKeyHash, err = circuits.StoreArtifact(vkBytes); err != nil {
		return nil, err
	}
	data, err := json.Marshal(index)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write key index: %w", err)
	}
	return circuits.NewCircuitArtifacts(kind,
		&circuits.Artifact{Hash: index.ProvingKeyHash, Content: pkBytes},
		&circuits.Artifact{Hash: index.VerifyingKeyHash, Content: vkBytes}), nil
}

// RemoteKeys downloads the keys published by a relay, checking them against
// the hashes of its manifest, and caches them locally.
type RemoteKeys struct {
	// Manifest fetches the manifest of a kind.
	Manifest func(ctx context.Context, kind types.Kind) (*types.CircuitManifest, error)
	// URL returns the download URL of an artifact of a kind.
	URL func(kind types.Kind, name string) string
}

// Keys implements KeyProvider.
func (r *RemoteKeys) Keys(ctx context.Context, kind types.Kind, ccs constraint.ConstraintSystem) (*circuits.CircuitArtifacts, error) {
	m, err := r.Manifest(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("fetch %s manifest: %w", kind, err)
	}
	if m.Backend != Groth16Name {
		return nil, fmt.Errorf("relay uses the %q backend", m.Backend)
	}
	if m.Constraints != ccs.GetNbConstraints() {
		return nil, fmt.Errorf("relay circuit has %d constraints, local one %d", m.Constraints, ccs.GetNbConstraints())
	}
	artifacts := circuits.NewCircuitArtifacts(kind,
		&circuits.Artifact{RemoteURL: r.URL(kind, ArtifactProvingKey), Hash: m.ProvingKeyHash},
		&circuits.Artifact{RemoteURL: r.URL(kind, ArtifactVerifyingKey), Hash: m.VerifyingKeyHash})
	if err := artifacts.LoadAll(ctx); err != nil {
		return nil, err
	}
	return artifacts, nil
}
