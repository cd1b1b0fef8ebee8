package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"code.byted.org/khicago/nvstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	command.SetOut(&out)
	command.SetErr(&out)
	command.SetArgs(args)
	err := command.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "status", "--dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "Status: ok")

	out, err = execute(t, "set", "--dir", dir, "-n", "cfg", "-k", "count", "-t", "uint32", "-v", "5")
	require.NoError(t, err)
	require.Equal(t, "stored\n", out)

	out, err = execute(t, "set", "--dir", dir, "-n", "cfg", "-k", "count", "-t", "uint32", "-v", "5")
	require.NoError(t, err)
	require.Equal(t, "unchanged\n", out)

	out, err = execute(t, "get", "--dir", dir, "-n", "cfg", "-k", "count", "-t", "uint32")
	require.NoError(t, err)
	require.Equal(t, "5\n", out)

	out, err = execute(t, "set", "--dir", dir, "-n", "cfg", "-k", "id", "-t", "blob", "--encoding", "base58", "-v", "2NEpo7TZRRrLZSi2U")
	require.NoError(t, err)
	require.Equal(t, "stored\n", out)

	out, err = execute(t, "get", "--dir", dir, "-n", "cfg", "-k", "id", "-t", "blob", "--encoding", "hex")
	require.NoError(t, err)
	require.Equal(t, "48656c6c6f20576f726c6421\n", out)

	out, err = execute(t, "size", "--dir", dir, "-n", "cfg", "-k", "name", "-t", "string")
	require.NoError(t, err)
	require.Equal(t, "-1\n", out)

	_, err = execute(t, "set", "--dir", dir, "-n", "cfg", "-k", "count", "-t", "uint8", "-v", "300")
	require.Error(t, err)

	_, err = execute(t, "erase", "--dir", dir)
	require.ErrorContains(t, err, "--yes")

	out, err = execute(t, "erase", "--dir", dir, "--yes")
	require.NoError(t, err)
	require.Equal(t, "erased\n", out)

	_, err = execute(t, "get", "--dir", dir, "-n", "cfg", "-k", "count", "-t", "uint32")
	require.ErrorIs(t, err, nvstore.ErrNotFound)
}

func memoryStream(t *testing.T) *nvstore.Stream {
	t.Helper()
	ctx := context.Background()
	s, err := nvstore.OpenStream(ctx, nvstore.NewDevice(ctx, nvstore.NewMemory(), nvstore.DefaultPartition), "cfg", nvstore.ReadWrite)
	require.NoError(t, err)
	return s
}

func TestItems(t *testing.T) {
	ctx := context.Background()
	s := memoryStream(t)

	for _, tc := range []struct {
		typ, raw, want string
	}{
		{"uint8", "0xff", "255"},
		{"int8", "-128", "-128"},
		{"uint16", "65535", "65535"},
		{"int16", "-2", "-2"},
		{"uint32", "7", "7"},
		{"int32", "-7", "-7"},
		{"uint64", "18446744073709551615", "18446744073709551615"},
		{"int64", "-9223372036854775808", "-9223372036854775808"},
		{"bool", "true", "true"},
		{"string", "pump", "pump"},
		{"blob", "cafe", "cafe"},
	} {
		key := "k_" + tc.typ
		require.NoError(t, writeItem(ctx, s, key, tc.typ, tc.raw, encodingHex), tc.typ)
		got, err := readItem(ctx, s, key, tc.typ, encodingHex)
		require.NoError(t, err, tc.typ)
		require.Equal(t, tc.want, got, tc.typ)
	}
}

func TestItems_Invalid(t *testing.T) {
	ctx := context.Background()
	s := memoryStream(t)

	require.Error(t, writeItem(ctx, s, "k", "uint8", "256", encodingHex))
	require.Error(t, writeItem(ctx, s, "k", "int16", "abc", encodingHex))
	require.Error(t, writeItem(ctx, s, "k", "bool", "maybe", encodingHex))
	require.Error(t, writeItem(ctx, s, "k", "blob", "xyz", encodingHex))
	require.Error(t, writeItem(ctx, s, "k", "blob", "00", "base64"))
	require.Error(t, writeItem(ctx, s, "k", "float32", "1", encodingHex))

	_, err := readItem(ctx, s, "k", "float32", encodingHex)
	require.Error(t, err)
	require.False(t, s.Dirty())
}

func TestItemKind(t *testing.T) {
	k, err := itemKind("bool")
	require.NoError(t, err)
	require.Equal(t, nvstore.KindI8, k)

	k, err = itemKind("string")
	require.NoError(t, err)
	require.Equal(t, nvstore.KindString, k)

	_, err = itemKind("float32")
	require.Error(t, err)
}

func TestIsSyncNoise(t *testing.T) {
	noise := errors.New("sync /dev/stderr: invalid argument")
	require.True(t, isSyncNoise(noise))
	require.True(t, isSyncNoise(multierr.Append(noise, errors.New("sync /dev/stdout: invalid argument"))))
	require.False(t, isSyncNoise(multierr.Append(noise, errors.New("disk full"))))
}
