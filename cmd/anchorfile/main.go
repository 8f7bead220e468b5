// Package main inspects and migrates anchor object files.
//
// Usage:
//
//	anchorfile inspect <path>
//	anchorfile migrate [-o out] [-sqlite db] <path>
//	anchorfile export -sqlite db [-o out]
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/comalice/anchorflow/internal/production"
	"github.com/comalice/anchorflow/spatial"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	var err error
	switch args[0] {
	case "inspect":
		err = inspect(args[1:], stdout)
	case "migrate":
		err = migrate(ctx, args[1:], stdout)
	case "export":
		err = export(ctx, args[1:], stdout)
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  anchorfile inspect <path>")
	fmt.Fprintln(w, "  anchorfile migrate [-o out] [-sqlite db] <path>")
	fmt.Fprintln(w, "  anchorfile export -sqlite db [-o out]")
}

func inspect(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("inspect: expected one path")
	}
	positions, format, err := readFile(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %s format, %d positions\n", fs.Arg(0), format, len(positions))
	for i, p := range positions {
		fmt.Fprintf(stdout, "%4d  %s\n", i, production.FormatPosition(p))
	}
	return nil
}

// migrate rewrites a file in canonical form, in place unless -o is given,
// and optionally imports it into a SQLite store.
func migrate(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	out := fs.String("o", "", "output path (default: rewrite in place)")
	dbPath := fs.String("sqlite", "", "also import into this SQLite database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("migrate: expected one path")
	}
	src := fs.Arg(0)
	positions, format, err := readFile(src)
	if err != nil {
		return err
	}

	dst := src
	if *out != "" {
		dst = *out
	}
	if err := production.NewFileStore(filepath.Dir(dst), filepath.Base(dst)).Save(ctx, positions); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "migrated %d positions from %s format to %s (%s)\n", len(positions), format, dst, production.FormatVersion)

	if *dbPath != "" {
		st, err := production.OpenSQLiteStore(*dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Save(ctx, positions); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "imported %d positions into %s\n", len(positions), *dbPath)
	}
	return nil
}

// export writes the record held in a SQLite store as a canonical file, or to
// stdout without -o.
func export(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("o", "", "output path (default: stdout)")
	dbPath := fs.String("sqlite", "", "SQLite database to read")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return fmt.Errorf("export: -sqlite is required")
	}
	st, err := production.OpenSQLiteStore(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	positions, err := st.Load(ctx)
	if err != nil {
		return err
	}
	if *out == "" {
		return production.EncodePositions(stdout, positions)
	}
	if err := production.NewFileStore(filepath.Dir(*out), filepath.Base(*out)).Save(ctx, positions); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported %d positions to %s\n", len(positions), *out)
	return nil
}

// readFile decodes path and reports whether it carried the canonical header.
func readFile(path string) ([]spatial.Vec3, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", production.ErrStorageRead, path, err)
	}
	positions, err := production.DecodePositions(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return positions, detectFormat(data), nil
}

func detectFormat(data []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == production.FormatHeader {
			return production.FormatVersion
		}
		break
	}
	return "legacy"
}
