package artifacts

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/dcipctl/internal/testchain"
)

const (
	router    = "0x6725F303b657a9451d8BA641348b6761A6CC7a17"
	marketing = "0xDCDb52F336Ed4E0577F2Ab6b298269aaf20A1EC1"
	community = "0xd3EaF9906a4FeE2d4334044559DF0579Fa65F253"
)

func TestBytecode_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{name: "string", json: `"0x6001"`, want: "0x6001"},
		{name: "object", json: `{"object":"0x6002","sourceMap":""}`, want: "0x6002"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var b Bytecode
			require.NoError(t, json.Unmarshal([]byte(tc.json), &b))
			assert.Equal(t, tc.want, b.String())
		})
	}

	var b Bytecode
	assert.Error(t, json.Unmarshal([]byte(`42`), &b))
}

func TestBytecode_Bytes(t *testing.T) {
	code, err := NewBytecode("6001").Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x01}, code)

	_, err = NewBytecode("0x").Bytes()
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = NewBytecode("0x73__SafeMath______________________________6000").Bytes()
	assert.ErrorIs(t, err, ErrUnlinked)

	_, err = NewBytecode("0xzz").Bytes()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestStore_Load(t *testing.T) {
	dir := testchain.WriteArtifacts(t, t.TempDir())
	store := NewStore(dir)

	a, err := store.Load("DCIP")
	require.NoError(t, err)
	assert.Equal(t, "DCIP", a.ContractName)
	assert.Equal(t, testchain.CompilerVersion, a.Compiler.Version)
	assert.Len(t, a.ABIDef().Constructor.Inputs, 3)

	again, err := store.Load("DCIP")
	require.NoError(t, err)
	assert.Same(t, a, again)

	_, err = store.Load("Missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LoadFoundryLayout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Presale.sol"), 0o755))
	doc := `{
		"abi": ` + testchain.Presale.ABI + `,
		"bytecode": {"object": "` + testchain.Presale.Bytecode + `"},
		"metadata": {"compiler": {"version": "0.6.12+commit.27d51765"}}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Presale.sol", "Presale.json"), []byte(doc), 0o644))

	a, err := NewStore(dir).Load("Presale")
	require.NoError(t, err)
	assert.Equal(t, "Presale", a.ContractName)
	assert.Equal(t, "0.6.12+commit.27d51765", a.Compiler.Version)
	assert.Contains(t, a.ABIDef().Methods, "rate")
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("X", []byte(`{`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse("X", []byte(`{"bytecode":"0x00"}`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse("X", []byte(`{"abi":[{"type":"function","name":"f","inputs":[{"type":"unknown256"}]}]}`))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCreationData(t *testing.T) {
	a, err := Parse("DCIP", []byte(`{"abi":`+testchain.DCIP.ABI+`,"bytecode":"`+testchain.DCIP.Bytecode+`"}`))
	require.NoError(t, err)

	args, err := a.ConstructorArgs([]string{router, marketing, community})
	require.NoError(t, err)

	data, err := a.CreationData(args...)
	require.NoError(t, err)

	code, err := a.Bytecode.Bytes()
	require.NoError(t, err)
	require.Len(t, data, len(code)+3*32)
	assert.Equal(t, code, data[:len(code)])
	assert.Equal(t, common.HexToAddress(router).Bytes(), data[len(code)+12:len(code)+32])

	_, err = a.CreationData(common.HexToAddress(router))
	assert.ErrorIs(t, err, ErrArgs)
}

func TestConvertArgs(t *testing.T) {
	mustType := func(s string) abi.Type {
		typ, err := abi.NewType(s, "", nil)
		require.NoError(t, err)
		return typ
	}

	pow2 := func(n uint) *big.Int { return new(big.Int).Lsh(big.NewInt(1), n) }

	tests := []struct {
		name    string
		typ     string
		in      string
		want    any
		wantErr bool
	}{
		{name: "address", typ: "address", in: router, want: common.HexToAddress(router)},
		{name: "bad address", typ: "address", in: "0x123", wantErr: true},
		{name: "uint256", typ: "uint256", in: "750", want: big.NewInt(750)},
		{name: "uint256 hex", typ: "uint256", in: "0x2ee", want: big.NewInt(750)},
		{name: "negative uint", typ: "uint256", in: "-1", wantErr: true},
		{name: "uint8", typ: "uint8", in: "18", want: uint8(18)},
		{name: "uint8 overflow", typ: "uint8", in: "256", wantErr: true},
		{name: "int64", typ: "int64", in: "-5", want: int64(-5)},
		{name: "uint24", typ: "uint24", in: "3000", want: big.NewInt(3000)},
		{name: "int24 max", typ: "int24", in: "8388607", want: big.NewInt(8388607)},
		{name: "int24 min", typ: "int24", in: "-8388608", want: big.NewInt(-8388608)},
		{name: "int24 overflow", typ: "int24", in: "8388608", wantErr: true},
		{name: "int24 underflow", typ: "int24", in: "-8388609", wantErr: true},
		{name: "int256 max", typ: "int256", in: new(big.Int).Sub(pow2(255), big.NewInt(1)).String(), want: new(big.Int).Sub(pow2(255), big.NewInt(1))},
		{name: "int256 min", typ: "int256", in: new(big.Int).Neg(pow2(255)).String(), want: new(big.Int).Neg(pow2(255))},
		{name: "int256 overflow", typ: "int256", in: pow2(255).String(), wantErr: true},
		{name: "int256 underflow", typ: "int256", in: new(big.Int).Sub(new(big.Int).Neg(pow2(255)), big.NewInt(1)).String(), wantErr: true},
		{name: "uint256 max", typ: "uint256", in: new(big.Int).Sub(pow2(256), big.NewInt(1)).String(), want: new(big.Int).Sub(pow2(256), big.NewInt(1))},
		{name: "uint256 overflow", typ: "uint256", in: pow2(256).String(), wantErr: true},
		{name: "bool", typ: "bool", in: "true", want: true},
		{name: "string", typ: "string", in: "my name", want: "my name"},
		{name: "bytes", typ: "bytes", in: "0x0102", want: []byte{1, 2}},
		{name: "bytes4", typ: "bytes4", in: "0x08c379a0", want: [4]byte{0x08, 0xc3, 0x79, 0xa0}},
		{name: "bytes2 too long", typ: "bytes2", in: "0x010203", wantErr: true},
		{name: "array", typ: "address[]", in: router, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ConvertValue(mustType(tc.typ), tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ConvertArgs(abi.Arguments{{Type: mustType("address")}}, nil)
	assert.ErrorIs(t, err, ErrArgs)
}

func TestCheckCompiler(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		version    string
		wantErr    error
	}{
		{name: "caret match", constraint: "^0.6.8", version: "0.6.12+commit.27d51765.Emscripten.clang"},
		{name: "caret lower bound", constraint: "^0.6.8", version: "0.6.8"},
		{name: "caret below", constraint: "^0.6.8", version: "0.6.7", wantErr: ErrCompilerMatch},
		{name: "caret next minor", constraint: "^0.6.8", version: "0.7.0", wantErr: ErrCompilerMatch},
		{name: "caret major", constraint: "^1.2.0", version: "1.9.9"},
		{name: "tilde", constraint: "~0.8.1", version: "0.8.20"},
		{name: "tilde next minor", constraint: "~0.8.1", version: "0.9.0", wantErr: ErrCompilerMatch},
		{name: "exact", constraint: "0.6.12", version: "v0.6.12"},
		{name: "go-version syntax", constraint: ">= 0.8.0, < 0.9.0", version: "0.8.19"},
		{name: "unknown version", constraint: "^0.6.8", version: ""},
		{name: "no constraint", constraint: "", version: "0.4.0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := &Artifact{ContractName: "DCIP", Compiler: Compiler{Version: tc.version}}
			err := CheckCompiler(tc.constraint, a)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	_, err := ParseConstraint("^banana")
	assert.Error(t, err)
}
