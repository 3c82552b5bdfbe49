package ai

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	artifactMagic   = "leafnet"
	artifactVersion = 1
)

type artifactHeader struct {
	Magic   string
	Version int
}

// EncodeArtifact writes net in the model artifact format.
func EncodeArtifact(w io.Writer, net *Network) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(artifactHeader{Magic: artifactMagic, Version: artifactVersion}); err != nil {
		return fmt.Errorf("failed to write artifact header: %w", err)
	}
	if err := enc.Encode(net); err != nil {
		return fmt.Errorf("failed to write network: %w", err)
	}
	return nil
}

// DecodeArtifact reads a network written by EncodeArtifact.
func DecodeArtifact(r io.Reader) (*Network, error) {
	dec := gob.NewDecoder(r)

	var hdr artifactHeader
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("failed to read artifact header: %w", err)
	}
	if hdr.Magic != artifactMagic {
		return nil, fmt.Errorf("not a model artifact (magic %q)", hdr.Magic)
	}
	if hdr.Version != artifactVersion {
		return nil, fmt.Errorf("unsupported artifact version %d", hdr.Version)
	}

	var net Network
	if err := dec.Decode(&net); err != nil {
		return nil, fmt.Errorf("failed to read network: %w", err)
	}
	return &net, nil
}

// SaveArtifact writes net to path, replacing any existing file atomically so
// a watching server never reads a half-written artifact.
func SaveArtifact(path string, net *Network) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".leafnet-*")
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := EncodeArtifact(tmp, net); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
