package main

import (
	"context"
	"errors"
	"fmt"

	"code.byted.org/khicago/nvstore"
	"github.com/spf13/cobra"
)

var statusCMD = &cobra.Command{
	Use:   "status",
	Short: "Partition status",
	Long:  `Initialize the partition, re-initializing it once if it is truncated or newer, and print its status.`,
	Args:  cobra.NoArgs,
	RunE:  run(statusFunc),
}

var getCMD = &cobra.Command{
	Use:   "get",
	Short: "Read a value",
	Args:  cobra.NoArgs,
	RunE:  run(getFunc),
}

var setCMD = &cobra.Command{
	Use:   "set",
	Short: "Write and commit a value",
	Long:  `Write a value and commit it. Nothing is written if the stored value is the same.`,
	Args:  cobra.NoArgs,
	RunE:  run(setFunc),
}

var sizeCMD = &cobra.Command{
	Use:   "size",
	Short: "Print the stored size of a value",
	Args:  cobra.NoArgs,
	RunE:  run(sizeFunc),
}

var eraseCMD = &cobra.Command{
	Use:   "erase",
	Short: "Erase the partition",
	Long:  `Erase all namespaces of the partition and initialize it empty.`,
	Args:  cobra.NoArgs,
	RunE:  run(eraseFunc),
}

func init() {
	addItemFlags(getCMD)
	addItemFlags(setCMD)
	addItemFlags(sizeCMD)

	setCMD.Flags().StringP(flagValue, "v", "", "Value to store")
	_ = setCMD.MarkFlagRequired(flagValue)

	eraseCMD.Flags().Bool(flagYes, false, "Confirm erasing")
}

func statusFunc(_ context.Context, cmd *cobra.Command, e *env) error {
	d := e.device
	cmd.Printf("Partition: %q\n", d.Label())
	cmd.Printf("File: %s\n", e.driver.Path(d.Label()))
	if err := d.Status(); err != nil {
		cmd.Printf("Status: %v\n", err)
		if nvstore.Recoverable(err) {
			cmd.Println("Hint: the partition can be recovered with `nvsctl erase`.")
		}
		return nil
	}
	cmd.Println("Status: ok")
	return nil
}

func getFunc(ctx context.Context, cmd *cobra.Command, e *env) error {
	key, typ, enc := itemFlags(cmd)
	s, err := e.open(cmd, nvstore.ReadOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := readItem(ctx, s, key, typ, enc)
	if err != nil {
		return fmt.Errorf("could not read %s item %q: %w", typ, key, err)
	}
	cmd.Println(v)
	return nil
}

func setFunc(ctx context.Context, cmd *cobra.Command, e *env) error {
	key, typ, enc := itemFlags(cmd)
	raw, _ := cmd.Flags().GetString(flagValue)

	s, err := e.open(cmd, nvstore.ReadWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := writeItem(ctx, s, key, typ, raw, enc); err != nil {
		return fmt.Errorf("could not write %s item %q: %w", typ, key, err)
	}
	if !s.Dirty() {
		cmd.Println("unchanged")
		return nil
	}
	if err := s.Commit(ctx); err != nil {
		return fmt.Errorf("could not commit namespace %q: %w", s.Namespace(), err)
	}
	cmd.Println("stored")
	return nil
}

func sizeFunc(ctx context.Context, cmd *cobra.Command, e *env) error {
	key, typ, _ := itemFlags(cmd)
	kind, err := itemKind(typ)
	if err != nil {
		return err
	}
	s, err := e.open(cmd, nvstore.ReadOnly)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.Size(ctx, key, kind)
	if err != nil && !errors.Is(err, nvstore.ErrNotFound) {
		return fmt.Errorf("could not get size of %q: %w", key, err)
	}
	cmd.Println(n)
	return nil
}

func eraseFunc(ctx context.Context, cmd *cobra.Command, e *env) error {
	if yes, _ := cmd.Flags().GetBool(flagYes); !yes {
		return errors.New("erasing destroys every namespace of the partition, pass --yes to confirm")
	}
	if err := e.device.Erase(ctx); err != nil {
		return fmt.Errorf("could not erase partition %q: %w", e.device.Label(), err)
	}
	cmd.Println("erased")
	return nil
}

func itemFlags(cmd *cobra.Command) (key, typ, encoding string) {
	key, _ = cmd.Flags().GetString(flagKey)
	typ, _ = cmd.Flags().GetString(flagType)
	encoding, _ = cmd.Flags().GetString(flagEncoding)
	return key, typ, encoding
}
