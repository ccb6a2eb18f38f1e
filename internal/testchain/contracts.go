// Package testchain provides an in-process chain and minimal contracts for
// exercising deployments in tests.
package testchain

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// CompilerVersion is recorded in every artifact written by WriteArtifacts.
const CompilerVersion = "0.6.12+commit.27d51765.Emscripten.clang"

// Contract is a hand-assembled stand-in for a compiled contract.
type Contract struct {
	Name     string
	ABI      string
	Bytecode string
}

// DCIP takes three address constructor arguments and deploys a single STOP.
var DCIP = Contract{
	Name: "DCIP",
	ABI: `[{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"_router","type":"address"},
		{"name":"_marketingWallet","type":"address"},
		{"name":"_community","type":"address"}]}]`,
	Bytecode: "0x600180600b6000396000f300",
}

// Presale answers every call with uint256 750.
var Presale = Contract{
	Name: "Presale",
	ABI: `[{"type":"function","name":"rate","stateMutability":"view","inputs":[],
		"outputs":[{"name":"","type":"uint256"}]}]`,
	Bytecode: "0x600b80600b6000396000f3" + "6102ee60005260206000f3",
}

// PrivateSale answers every call with the ABI string "my name".
var PrivateSale = Contract{
	Name: "PrivateSale",
	ABI: `[{"type":"function","name":"getName","stateMutability":"view","inputs":[],
		"outputs":[{"name":"","type":"string"}]}]`,
	Bytecode: "0x603380600b6000396000f3" +
		"6020600052" + "6007602052" +
		"7f" + "6d79206e616d65" + strings.Repeat("00", 25) + "604052" +
		"60606000f3",
}

// Reverter's constructor reverts with Error("boom").
var Reverter = Contract{
	Name: "Reverter",
	ABI:  `[{"type":"constructor","stateMutability":"nonpayable","inputs":[]}]`,
	Bytecode: "0x" +
		"7f08c379a0" + strings.Repeat("00", 28) + "600052" +
		"6020600452" +
		"6004602452" +
		"7f626f6f6d" + strings.Repeat("00", 28) + "604452" +
		"60646000fd",
}

// RevertReason is the reason Reverter reverts with.
const RevertReason = "boom"

// All lists every fixture contract.
var All = []Contract{DCIP, Presale, PrivateSale, Reverter}

// WriteArtifacts writes Truffle-style artifacts for contracts into dir and
// returns dir. With no contracts given, All are written.
func WriteArtifacts(t testing.TB, dir string, contracts ...Contract) string {
	t.Helper()

	if len(contracts) == 0 {
		contracts = All
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))

	for _, c := range contracts {
		doc := map[string]any{
			"contractName": c.Name,
			"abi":          json.RawMessage(c.ABI),
			"bytecode":     c.Bytecode,
			"compiler": map[string]string{
				"name":    "solc",
				"version": CompilerVersion,
			},
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, c.Name+".json"), data, 0o644))
	}
	return dir
}
