package signer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// DecodeTypedData parses a raw EIP-712 payload keeping numbers as
// json.Number, so uint256 values larger than 2^53 survive the decode intact.
func DecodeTypedData(raw []byte) (apitypes.TypedData, error) {
	var td apitypes.TypedData
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&td); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("decode typed data: %w", err)
	}
	if td.PrimaryType == "" {
		return apitypes.TypedData{}, fmt.Errorf("typed data missing primaryType")
	}
	if _, ok := td.Types[td.PrimaryType]; !ok {
		return apitypes.TypedData{}, fmt.Errorf("typed data missing type %q", td.PrimaryType)
	}
	return td, nil
}

// NormalizePayload rewrites every integer-typed field of the message to a
// base-10 decimal string, driven by the declared type schema rather than by
// probing value shapes. Hashing then treats all large integers uniformly and
// no precision is lost on the way to the signature.
func NormalizePayload(td *apitypes.TypedData) error {
	if td == nil {
		return fmt.Errorf("nil typed data")
	}
	return normalizeStruct(td, td.PrimaryType, td.Message)
}

func normalizeStruct(td *apitypes.TypedData, typeName string, msg map[string]interface{}) error {
	fields, ok := td.Types[typeName]
	if !ok {
		return fmt.Errorf("unknown type %q", typeName)
	}
	for _, f := range fields {
		v, present := msg[f.Name]
		if !present {
			return fmt.Errorf("%s: missing field %q", typeName, f.Name)
		}

		baseType := strings.TrimSuffix(f.Type, "[]")
		isArray := baseType != f.Type

		switch {
		case isStructType(td, baseType):
			if isArray {
				items, ok := v.([]interface{})
				if !ok {
					return fmt.Errorf("%s.%s: expected array, got %T", typeName, f.Name, v)
				}
				for i, item := range items {
					m, ok := item.(map[string]interface{})
					if !ok {
						return fmt.Errorf("%s.%s[%d]: expected object, got %T", typeName, f.Name, i, item)
					}
					if err := normalizeStruct(td, baseType, m); err != nil {
						return err
					}
				}
				continue
			}
			m, ok := v.(map[string]interface{})
			if !ok {
				return fmt.Errorf("%s.%s: expected object, got %T", typeName, f.Name, v)
			}
			if err := normalizeStruct(td, baseType, m); err != nil {
				return err
			}

		case isIntegerType(baseType):
			if isArray {
				items, ok := v.([]interface{})
				if !ok {
					return fmt.Errorf("%s.%s: expected array, got %T", typeName, f.Name, v)
				}
				for i, item := range items {
					s, err := integerToString(item)
					if err != nil {
						return fmt.Errorf("%s.%s[%d]: %w", typeName, f.Name, i, err)
					}
					items[i] = s
				}
				continue
			}
			s, err := integerToString(v)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", typeName, f.Name, err)
			}
			msg[f.Name] = s
		}
	}
	return nil
}

func isStructType(td *apitypes.TypedData, name string) bool {
	_, ok := td.Types[name]
	return ok
}

func isIntegerType(t string) bool {
	return strings.HasPrefix(t, "uint") || strings.HasPrefix(t, "int")
}

func integerToString(v interface{}) (string, error) {
	switch x := v.(type) {
	case json.Number:
		if strings.ContainsAny(x.String(), ".eE") {
			return "", fmt.Errorf("non-integer number %q", x.String())
		}
		return x.String(), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return "", fmt.Errorf("empty integer value")
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			i, ok := new(big.Int).SetString(s[2:], 16)
			if !ok {
				return "", fmt.Errorf("invalid hex integer %q", s)
			}
			return i.String(), nil
		}
		if _, ok := new(big.Int).SetString(s, 10); !ok {
			return "", fmt.Errorf("invalid integer %q", s)
		}
		return s, nil
	case float64:
		// Only reachable when the payload was decoded without UseNumber;
		// integers up to 2^53 are still exact.
		i, acc := new(big.Float).SetFloat64(x).Int(nil)
		if acc != big.Exact {
			return "", fmt.Errorf("non-integral float %v", x)
		}
		return i.String(), nil
	default:
		return "", fmt.Errorf("unsupported integer value %T", v)
	}
}
