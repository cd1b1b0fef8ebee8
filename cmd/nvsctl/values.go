package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"code.byted.org/khicago/nvstore"
	"github.com/mr-tron/base58"
	"github.com/spf13/cast"
)

const (
	encodingHex    = "hex"
	encodingBase58 = "base58"

	typeBool = "bool"
)

var typeNames = []string{
	"uint8", "int8", "uint16", "int16", "uint32", "int32", "uint64", "int64",
	typeBool, "string", "blob",
}

// itemKind maps a value type name to its storage kind.
func itemKind(typ string) (nvstore.Kind, error) {
	if typ == typeBool {
		return nvstore.KindOf[bool](), nil
	}
	return nvstore.ParseKind(typ)
}

func readItem(ctx context.Context, s *nvstore.Stream, key, typ, encoding string) (string, error) {
	switch typ {
	case "uint8":
		return show(nvstore.Read[uint8](ctx, s, key))
	case "int8":
		return show(nvstore.Read[int8](ctx, s, key))
	case "uint16":
		return show(nvstore.Read[uint16](ctx, s, key))
	case "int16":
		return show(nvstore.Read[int16](ctx, s, key))
	case "uint32":
		return show(nvstore.Read[uint32](ctx, s, key))
	case "int32":
		return show(nvstore.Read[int32](ctx, s, key))
	case "uint64":
		return show(nvstore.Read[uint64](ctx, s, key))
	case "int64":
		return show(nvstore.Read[int64](ctx, s, key))
	case typeBool:
		return show(nvstore.Read[bool](ctx, s, key))
	case "string":
		return s.ReadString(ctx, key)
	case "blob":
		size, err := s.Size(ctx, key, nvstore.KindBlob)
		if err != nil {
			return "", err
		}
		buf := make([]byte, size)
		n, err := s.ReadBlob(ctx, key, buf)
		if err != nil {
			return "", err
		}
		return encodeBlob(buf[:n], encoding)
	}
	return "", fmt.Errorf("unknown type %q", typ)
}

func writeItem(ctx context.Context, s *nvstore.Stream, key, typ, raw, encoding string) error {
	switch typ {
	case "uint8":
		return writeUint[uint8](ctx, s, key, raw, 8)
	case "int8":
		return writeInt[int8](ctx, s, key, raw, 8)
	case "uint16":
		return writeUint[uint16](ctx, s, key, raw, 16)
	case "int16":
		return writeInt[int16](ctx, s, key, raw, 16)
	case "uint32":
		return writeUint[uint32](ctx, s, key, raw, 32)
	case "int32":
		return writeInt[int32](ctx, s, key, raw, 32)
	case "uint64":
		return writeUint[uint64](ctx, s, key, raw, 64)
	case "int64":
		return writeInt[int64](ctx, s, key, raw, 64)
	case typeBool:
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return fmt.Errorf("invalid bool value %q: %w", raw, err)
		}
		return nvstore.Write(ctx, s, key, v)
	case "string":
		return s.WriteString(ctx, key, raw)
	case "blob":
		data, err := decodeBlob(raw, encoding)
		if err != nil {
			return err
		}
		return s.WriteBlob(ctx, key, data)
	}
	return fmt.Errorf("unknown type %q", typ)
}

func writeUint[T uint8 | uint16 | uint32 | uint64](ctx context.Context, s *nvstore.Stream, key, raw string, bits int) error {
	v, err := strconv.ParseUint(raw, 0, bits)
	if err != nil {
		return fmt.Errorf("invalid uint%d value %q: %w", bits, raw, err)
	}
	return nvstore.Write(ctx, s, key, T(v))
}

func writeInt[T int8 | int16 | int32 | int64](ctx context.Context, s *nvstore.Stream, key, raw string, bits int) error {
	v, err := strconv.ParseInt(raw, 0, bits)
	if err != nil {
		return fmt.Errorf("invalid int%d value %q: %w", bits, raw, err)
	}
	return nvstore.Write(ctx, s, key, T(v))
}

func show[T any](v T, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func encodeBlob(data []byte, encoding string) (string, error) {
	switch encoding {
	case encodingHex:
		return hex.EncodeToString(data), nil
	case encodingBase58:
		return base58.Encode(data), nil
	}
	return "", fmt.Errorf("unknown encoding %q", encoding)
}

func decodeBlob(raw, encoding string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch encoding {
	case encodingHex:
		data, err = hex.DecodeString(raw)
	case encodingBase58:
		data, err = base58.Decode(raw)
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s blob: %w", encoding, err)
	}
	return data, nil
}
