// Package artifacts loads compiled contract artifacts and prepares
// contract-creation payloads from them.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrNotFound      = errors.New("dcip: artifact not found")
	ErrInvalid       = errors.New("dcip: invalid artifact")
	ErrUnlinked      = errors.New("dcip: bytecode has unlinked library references")
	ErrArgs          = errors.New("dcip: invalid constructor arguments")
	ErrCompilerMatch = errors.New("dcip: artifact compiler does not satisfy the configured version")
)

// Artifact is a compiled contract as written by Truffle, Hardhat or Foundry.
type Artifact struct {
	ContractName     string          `json:"contractName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         Bytecode        `json:"bytecode"`
	DeployedBytecode Bytecode        `json:"deployedBytecode,omitempty"`
	Compiler         Compiler        `json:"compiler,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`

	parsed abi.ABI
}

// Compiler identifies the compiler that produced an artifact.
type Compiler struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// Bytecode holds hex bytecode and accepts both the plain string form and
// the {"object": "..."} form on input.
type Bytecode struct {
	hex string
}

// NewBytecode wraps a hex string.
func NewBytecode(hex string) Bytecode {
	return Bytecode{hex: hex}
}

// UnmarshalJSON handles both string and object bytecode formats.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.hex = s
		return nil
	}

	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		b.hex = obj.Object
		return nil
	}

	return fmt.Errorf("bytecode must be a string or object with 'object' field")
}

// MarshalJSON marshals the bytecode as a string.
func (b Bytecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.hex)
}

func (b Bytecode) String() string {
	return b.hex
}

// Bytes decodes the bytecode. Placeholders left by the linker
// (__Name___ or __$hash$__) are reported as ErrUnlinked.
func (b Bytecode) Bytes() ([]byte, error) {
	s := strings.TrimSpace(b.hex)
	if s == "" || s == "0x" {
		return nil, fmt.Errorf("%w: empty bytecode", ErrInvalid)
	}
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	if i := strings.Index(s, "__"); i >= 0 {
		end := i + 40
		if end > len(s) {
			end = len(s)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnlinked, s[i:end])
	}
	code, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: bytecode: %v", ErrInvalid, err)
	}
	return code, nil
}

// Parse decodes an artifact and its ABI.
func Parse(name string, data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	if len(a.ABI) == 0 {
		return nil, fmt.Errorf("%w: %s: missing abi", ErrInvalid, name)
	}

	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: abi: %v", ErrInvalid, name, err)
	}
	a.parsed = parsed

	if a.ContractName == "" {
		a.ContractName = name
	}
	if a.Compiler.Version == "" {
		a.Compiler.Version = metadataCompilerVersion(a.Metadata)
	}
	return &a, nil
}

// ABIDef returns the parsed ABI.
func (a *Artifact) ABIDef() *abi.ABI {
	return &a.parsed
}

// CreationData returns the bytecode with the ABI-encoded constructor
// arguments appended.
func (a *Artifact) CreationData(args ...any) ([]byte, error) {
	code, err := a.Bytecode.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.ContractName, err)
	}

	packed, err := a.parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s constructor: %v", ErrArgs, a.ContractName, err)
	}

	data := make([]byte, 0, len(code)+len(packed))
	data = append(data, code...)
	return append(data, packed...), nil
}

// metadataCompilerVersion reads compiler.version from Foundry's metadata
// object. Truffle stores metadata as a JSON string, which is handled too.
func metadataCompilerVersion(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		raw = json.RawMessage(inner)
	}

	var meta struct {
		Compiler struct {
			Version string `json:"version"`
		} `json:"compiler"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	return meta.Compiler.Version
}
