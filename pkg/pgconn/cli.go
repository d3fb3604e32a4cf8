// SPDX-License-Identifier: Apache-2.0

package pgconn

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// cmdPathCache resolves each wrapped command's absolute path at most
// once per process, mirroring padmy's original has_cmd/check_cmd
// memoization in utils.py.
var cmdPathCache sync.Map // map[string]string

func resolveCmd(name string) (string, error) {
	if v, ok := cmdPathCache.Load(name); ok {
		return v.(string), nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found on PATH: %w", name, err)
	}
	cmdPathCache.Store(name, path)
	return path, nil
}

// CLI wraps the pg_dump/pg_restore/createdb/dropdb/psql commands,
// running them with d's PG* environment overlay.
type CLI struct {
	Descriptor *ConnectionDescriptor
}

func NewCLI(d *ConnectionDescriptor) *CLI {
	return &CLI{Descriptor: d}
}

// run resolves name on PATH, executes it with args under d's
// environment scope, and raises a *PGError if stderr contains an
// ERROR/FATAL block.
func (c *CLI) run(ctx context.Context, name string, args ...string) (stdout []byte, err error) {
	path, err := resolveCmd(name)
	if err != nil {
		return nil, err
	}

	err = c.Descriptor.WithEnv(func() error {
		cmd := exec.CommandContext(ctx, path, args...)
		cmd.Env = os.Environ()

		var outBuf, errBuf bytes.Buffer
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf

		runErr := cmd.Run()
		stdout = outBuf.Bytes()

		if pgErr := CheckStderr(name, errBuf.String()); pgErr != nil {
			return pgErr
		}
		if runErr != nil {
			return fmt.Errorf("%s: %w", name, runErr)
		}
		return nil
	})

	return stdout, err
}

func (c *CLI) connFlags() []string {
	var args []string
	if c.Descriptor.Host != "" {
		args = append(args, "-h", c.Descriptor.Host)
	}
	if c.Descriptor.Port != 0 {
		args = append(args, "-p", fmt.Sprintf("%d", c.Descriptor.Port))
	}
	if c.Descriptor.User != "" {
		args = append(args, "-U", c.Descriptor.User)
	}
	return args
}

// DumpOptions configures a Dump invocation.
type DumpOptions struct {
	SchemaOnly    bool
	NoOwner       bool
	NoPrivileges  bool
	CustomFormat  bool
	Encoding      string
	AllExtensions bool
	Schemas       []string
}

// Dump invokes pg_dump for database and returns its raw stdout (plain
// text unless CustomFormat is set).
func (c *CLI) Dump(ctx context.Context, database string, opts DumpOptions) ([]byte, error) {
	args := append(c.connFlags(), database)
	if opts.SchemaOnly {
		args = append(args, "--schema-only")
	}
	if opts.NoOwner {
		args = append(args, "--no-owner")
	}
	if opts.NoPrivileges {
		args = append(args, "--no-privileges")
	}
	if opts.CustomFormat {
		args = append(args, "-Fc")
	}
	if opts.Encoding != "" {
		args = append(args, "-E", opts.Encoding)
	}
	if opts.AllExtensions {
		args = append(args, "--extension=*")
	}
	for _, s := range opts.Schemas {
		args = append(args, "-n", s)
	}
	return c.run(ctx, "pg_dump", args...)
}

// Restore invokes pg_restore against database, feeding it the dump
// bytes previously produced by Dump(..., CustomFormat: true).
func (c *CLI) Restore(ctx context.Context, database string, dump []byte, noOwner, noPrivileges bool) error {
	path, err := resolveCmd("pg_restore")
	if err != nil {
		return err
	}

	return c.Descriptor.WithEnv(func() error {
		args := append(c.connFlags(), "-d", database)
		if noOwner {
			args = append(args, "--no-owner")
		}
		if noPrivileges {
			args = append(args, "--no-privileges")
		}

		cmd := exec.CommandContext(ctx, path, args...)
		cmd.Env = os.Environ()
		cmd.Stdin = bytes.NewReader(dump)

		var errBuf bytes.Buffer
		cmd.Stderr = &errBuf

		runErr := cmd.Run()
		if pgErr := CheckStderr("pg_restore", errBuf.String()); pgErr != nil {
			return pgErr
		}
		if runErr != nil {
			return fmt.Errorf("pg_restore: %w", runErr)
		}
		return nil
	})
}

// CreateDB invokes createdb.
func (c *CLI) CreateDB(ctx context.Context, database string) error {
	_, err := c.run(ctx, "createdb", append(c.connFlags(), database)...)
	return err
}

// DropDB invokes dropdb --if-exists.
func (c *CLI) DropDB(ctx context.Context, database string) error {
	_, err := c.run(ctx, "dropdb", append(c.connFlags(), "--if-exists", database)...)
	return err
}

// ExecStatement runs `psql -d database -c statement`.
func (c *CLI) ExecStatement(ctx context.Context, database, statement string) error {
	_, err := c.run(ctx, "psql", append(c.connFlags(), "-d", database, "-c", statement)...)
	return err
}

// ExecFile runs `psql -d database -f path`, applying the SQL file
// verbatim (used by apply-sql for plain SQL folder bootstrapping;
// migration bodies are executed through db.DB instead).
func (c *CLI) ExecFile(ctx context.Context, database, path string) error {
	_, err := c.run(ctx, "psql", append(c.connFlags(), "-d", database, "-f", path)...)
	return err
}
