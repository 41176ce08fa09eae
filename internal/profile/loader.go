package profile

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML profile; an empty path returns Default()
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()

	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Parse is Decode over an in-memory document
func Parse(data []byte) (*Profile, error) {
	return Decode(bytes.NewReader(data))
}

// Decode overlays the document on Default() and validates the result.
// Unknown keys fail so a typo never silently falls back to a default.
func Decode(r io.Reader) (*Profile, error) {
	p := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Hash is the hex SHA-256 of the profile's JSON form.
// Struct fields marshal in declaration order, so equal profiles hash equal.
func Hash(p *Profile) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
