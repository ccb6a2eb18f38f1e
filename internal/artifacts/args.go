package artifacts

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ConstructorArgs converts textual arguments to the Go values the
// artifact's constructor expects.
func (a *Artifact) ConstructorArgs(raw []string) ([]any, error) {
	args, err := ConvertArgs(a.parsed.Constructor.Inputs, raw)
	if err != nil {
		return nil, fmt.Errorf("%s constructor: %w", a.ContractName, err)
	}
	return args, nil
}

// ConvertArgs converts one string per ABI input.
func ConvertArgs(inputs abi.Arguments, raw []string) ([]any, error) {
	if len(inputs) != len(raw) {
		return nil, fmt.Errorf("%w: want %d arguments, got %d", ErrArgs, len(inputs), len(raw))
	}

	out := make([]any, len(raw))
	for i, in := range inputs {
		v, err := ConvertValue(in.Type, strings.TrimSpace(raw[i]))
		if err != nil {
			name := in.Name
			if name == "" {
				name = "#" + strconv.Itoa(i)
			}
			return nil, fmt.Errorf("%w: argument %s (%s): %v", ErrArgs, name, in.Type.String(), err)
		}
		out[i] = v
	}
	return out, nil
}

// ConvertValue converts s to the Go type abi.Pack expects for t.
func ConvertValue(t abi.Type, s string) (any, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%q is not a hex address", s)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		return strconv.ParseBool(s)

	case abi.StringTy:
		return s, nil

	case abi.UintTy, abi.IntTy:
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("%q is negative", s)
		}
		return sizedInt(t, n)

	case abi.BytesTy:
		return hexutil.Decode(s)

	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if len(b) > t.Size {
			return nil, fmt.Errorf("%d bytes do not fit in bytes%d", len(b), t.Size)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	default:
		return nil, fmt.Errorf("unsupported argument type %s", t.String())
	}
}

// sizedInt narrows n to the fixed-width Go integer go-ethereum uses for
// types of 64 bits or less.
func sizedInt(t abi.Type, n *big.Int) (any, error) {
	rt := t.GetType()
	if rt.Kind() == reflect.Ptr {
		// uint24, int256 and other widths without a native Go type.
		if !fitsBits(t, n) {
			return nil, fmt.Errorf("%s overflows %s", n, t.String())
		}
		return n, nil
	}

	v := reflect.New(rt).Elem()
	if t.T == abi.UintTy {
		if !n.IsUint64() || v.OverflowUint(n.Uint64()) {
			return nil, fmt.Errorf("%s overflows %s", n, t.String())
		}
		v.SetUint(n.Uint64())
	} else {
		if !n.IsInt64() || v.OverflowInt(n.Int64()) {
			return nil, fmt.Errorf("%s overflows %s", n, t.String())
		}
		v.SetInt(n.Int64())
	}
	return v.Interface(), nil
}

// fitsBits reports whether n is in range for t: [0, 2^size) for unsigned
// types and [-2^(size-1), 2^(size-1)) for signed ones.
func fitsBits(t abi.Type, n *big.Int) bool {
	if t.T == abi.UintTy {
		return n.Sign() >= 0 && n.BitLen() <= t.Size
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	return n.Cmp(limit) < 0 && n.Cmp(new(big.Int).Neg(limit)) >= 0
}
