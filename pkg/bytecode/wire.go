package bytecode

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ArtifactVersion is the schema version of the CBOR artifact. Readers reject
// any other version.
const ArtifactVersion uint16 = 1

// cborEncMode uses canonical mode so equal artifacts encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Artifact bundles a Program with its optional debug side table.
type Artifact struct {
	Version uint16     `cbor:"1,keyasint"`
	Program *Program   `cbor:"2,keyasint"`
	Debug   *DebugInfo `cbor:"3,keyasint,omitempty"`
}

// MarshalArtifact serializes a program and its debug info to CBOR bytes.
// debug may be nil.
func MarshalArtifact(p *Program, debug *DebugInfo) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("bytecode: marshal artifact: nil program")
	}
	return cborEncMode.Marshal(&Artifact{Version: ArtifactVersion, Program: p, Debug: debug})
}

// UnmarshalArtifact deserializes an artifact from CBOR bytes.
func UnmarshalArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal artifact: %w", err)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("bytecode: artifact version %d is not supported (want %d)", a.Version, ArtifactVersion)
	}
	if a.Program == nil {
		return nil, fmt.Errorf("bytecode: artifact has no program")
	}
	return &a, nil
}

// ArtifactDigest returns the SHA-256 of the canonical encoding, usable as a
// cache key for assembled output.
func ArtifactDigest(p *Program, debug *DebugInfo) ([32]byte, error) {
	data, err := MarshalArtifact(p, debug)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// MarshalDebugInfo serializes a debug side table on its own.
func MarshalDebugInfo(d *DebugInfo) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// UnmarshalDebugInfo deserializes a debug side table.
func UnmarshalDebugInfo(data []byte) (*DebugInfo, error) {
	var d DebugInfo
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal debug info: %w", err)
	}
	return &d, nil
}

// valueWire is the encoded form of a Value.
type valueWire struct {
	Kind Kind    `cbor:"1,keyasint"`
	N    int64   `cbor:"2,keyasint,omitempty"`
	F    float64 `cbor:"3,keyasint,omitempty"`
	S    string  `cbor:"4,keyasint,omitempty"`
}

// MarshalCBOR implements cbor.Marshaler.
func (v Value) MarshalCBOR() ([]byte, error) {
	return cborEncMode.Marshal(valueWire{Kind: v.kind, N: v.n, F: v.f, S: v.s})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (v *Value) UnmarshalCBOR(data []byte) error {
	var w valueWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Kind.Valid() {
		return fmt.Errorf("bytecode: unknown value kind %d", w.Kind)
	}
	*v = Value{kind: w.Kind, n: w.N, f: w.F, s: w.S}
	return nil
}
