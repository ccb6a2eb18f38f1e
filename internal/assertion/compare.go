package assertion

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// equal compares a decoded ABI value with a literal from code or config.
// Numbers compare as big integers; everything else by value.
func equal(expected, actual any) (bool, error) {
	switch a := actual.(type) {
	case *big.Int:
		want, err := toBigInt(expected)
		if err != nil {
			return false, err
		}
		return a.Cmp(want) == 0, nil
	case string:
		s, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("expected literal %v is not a string", expected)
		}
		return s == a, nil
	case bool:
		switch e := expected.(type) {
		case bool:
			return e == a, nil
		case string:
			b, err := strconv.ParseBool(e)
			if err != nil {
				return false, fmt.Errorf("expected literal %q is not a bool", e)
			}
			return b == a, nil
		}
		return false, fmt.Errorf("expected literal %v is not a bool", expected)
	case common.Address:
		s, ok := expected.(string)
		if !ok || !common.IsHexAddress(s) {
			return false, fmt.Errorf("expected literal %v is not an address", expected)
		}
		return common.HexToAddress(s) == a, nil
	case []byte:
		return bytesEqual(expected, a)
	}

	v := reflect.ValueOf(actual)
	switch v.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return equal(expected, new(big.Int).SetUint64(v.Uint()))
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return equal(expected, big.NewInt(v.Int()))
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return bytesEqual(expected, b)
		}
	}
	return false, fmt.Errorf("cannot compare values of type %T", actual)
}

func bytesEqual(expected any, actual []byte) (bool, error) {
	s, ok := expected.(string)
	if !ok {
		return false, fmt.Errorf("expected literal %v is not a hex string", expected)
	}
	return strings.EqualFold(s, hexutil.Encode(actual)), nil
}

func toBigInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("expected literal %v is not an integer", n)
		}
		b, _ := big.NewFloat(n).Int(nil)
		return b, nil
	case string:
		b, ok := new(big.Int).SetString(strings.TrimSpace(n), 0)
		if !ok {
			return nil, fmt.Errorf("expected literal %q is not an integer", n)
		}
		return b, nil
	}
	return nil, fmt.Errorf("expected literal %v (%T) is not a number", v, v)
}

// format renders a value for failure messages.
func format(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case []byte:
		return hexutil.Encode(x)
	case common.Address:
		return x.Hex()
	}
	return fmt.Sprint(v)
}
