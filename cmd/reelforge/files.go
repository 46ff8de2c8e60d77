package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// moveFile renames src to dest, copying across filesystems when rename
// cannot. src is gone on success.
func moveFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Remove(src)
}

func formatDuration(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 2, 64) + "s"
}
