package backup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/facucarcelero/comandero/internal/domain"
	"github.com/facucarcelero/comandero/internal/xid"
)

const FormatVersion = 1

var (
	ErrChecksumMismatch   = errors.New("backup checksum mismatch")
	ErrUnsupportedVersion = errors.New("unsupported backup version")
)

// Manifest describes a backup file. SHA256 covers the canonical JSON
// encoding of the dataset alone.
type Manifest struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	SHA256    string    `json:"sha256"`
	Products  int       `json:"products"`
	Sessions  int       `json:"sessions"`
	Orders    int       `json:"orders"`
}

type file struct {
	Manifest
	Data json.RawMessage `json:"data"`
}

func checksum(data domain.Dataset) (string, []byte, error) {
	canonical, err := json.Marshal(data)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), canonical, nil
}

// Write encodes data with its manifest to w.
func Write(w io.Writer, data domain.Dataset) (Manifest, error) {
	sum, canonical, err := checksum(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("encode dataset: %w", err)
	}
	manifest := Manifest{
		ID:        xid.New("bk"),
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		SHA256:    sum,
		Products:  len(data.Products),
		Sessions:  len(data.Sessions),
		Orders:    len(data.Orders),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file{Manifest: manifest, Data: canonical}); err != nil {
		return Manifest{}, fmt.Errorf("write backup: %w", err)
	}
	return manifest, nil
}

// Read decodes a backup and verifies its checksum before returning the data.
func Read(r io.Reader) (domain.Dataset, Manifest, error) {
	var f file
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return domain.Dataset{}, Manifest{}, fmt.Errorf("read backup: %w", err)
	}
	if f.Version != FormatVersion {
		return domain.Dataset{}, f.Manifest, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)
	}

	var data domain.Dataset
	dec := json.NewDecoder(bytes.NewReader(f.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return domain.Dataset{}, f.Manifest, fmt.Errorf("decode dataset: %w", err)
	}

	sum, _, err := checksum(data)
	if err != nil {
		return domain.Dataset{}, f.Manifest, fmt.Errorf("encode dataset: %w", err)
	}
	if sum != f.SHA256 {
		return domain.Dataset{}, f.Manifest, ErrChecksumMismatch
	}
	return data, f.Manifest, nil
}
