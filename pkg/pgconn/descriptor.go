// SPDX-License-Identifier: Apache-2.0

// Package pgconn implements the connection & process layer: parsing
// connection descriptors, building TLS contexts, scoping child-process
// environments and wrapping the pg_dump/pg_restore/createdb/dropdb/psql
// CLIs.
package pgconn

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// TLSMode is the negotiation vocabulary accepted on a ConnectionDescriptor.
type TLSMode string

const (
	TLSRequire    TLSMode = "require"
	TLSVerifyCA   TLSMode = "verify-ca"
	TLSVerifyFull TLSMode = "verify-full"
)

// ConnectionDescriptor holds everything needed to build a DSN, a TLS
// context and a child-process environment overlay for a single Postgres
// endpoint.
type ConnectionDescriptor struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string

	TLSMode         TLSMode
	TLSCa           string
	TLSCert         string
	TLSKey          string
	TLSKeyPassword  string
}

// ConfigError is raised for any malformed or self-contradictory
// connection descriptor.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Message
}

// ParseURI parses a postgresql:// URI into a ConnectionDescriptor. The
// password is never URL-decoded beyond what net/url itself performs, so
// it is passed through to the driver exactly as the caller supplied it.
func ParseURI(uri string) (*ConnectionDescriptor, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing connection URI: %w", err)
	}

	if u.Scheme != "postgresql" && u.Scheme != "postgres" {
		return nil, &ConfigError{Message: fmt.Sprintf("unsupported URI scheme %q", u.Scheme)}
	}

	d := &ConnectionDescriptor{
		Host: u.Hostname(),
	}

	if u.User != nil {
		d.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			d.Password = pw
		}
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, &ConfigError{Message: fmt.Sprintf("invalid port %q", p)}
		}
		d.Port = port
	} else {
		d.Port = 5432
	}

	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		d.Database = path
	}

	q := u.Query()
	d.TLSMode = TLSMode(q.Get("sslmode"))
	d.TLSCa = q.Get("sslrootcert")
	d.TLSCert = q.Get("sslcert")
	d.TLSKey = q.Get("sslkey")
	d.TLSKeyPassword = q.Get("sslpassword")

	if err := d.applyTLSDefaults(); err != nil {
		return nil, err
	}

	return d, nil
}

// applyTLSDefaults fills in the implicit verify-full mode when TLS
// material is supplied without an explicit mode, and rejects a
// half-specified client certificate pair.
func (d *ConnectionDescriptor) applyTLSDefaults() error {
	hasCertOnly := d.TLSCert != "" && d.TLSKey == ""
	hasKeyOnly := d.TLSKey != "" && d.TLSCert == ""
	if hasCertOnly || hasKeyOnly {
		return &ConfigError{Message: "tlsCert and tlsKey must both be set to enable mTLS, or neither"}
	}

	if d.TLSMode == "" && (d.TLSCa != "" || d.TLSCert != "" || d.TLSKey != "") {
		d.TLSMode = TLSVerifyFull
	}

	switch d.TLSMode {
	case "", TLSRequire, TLSVerifyCA, TLSVerifyFull:
	default:
		return &ConfigError{Message: fmt.Sprintf("unsupported TLS mode %q", d.TLSMode)}
	}

	return nil
}

// URI re-serializes the descriptor in postgresql:// form. Round-tripping
// ParseURI(URI(d)) reproduces every recognized field of d.
func (d *ConnectionDescriptor) URI() string {
	u := &url.URL{
		Scheme: "postgresql",
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
	}

	if d.User != "" {
		if d.Password != "" {
			u.User = url.UserPassword(d.User, d.Password)
		} else {
			u.User = url.User(d.User)
		}
	}

	if d.Database != "" {
		u.Path = "/" + d.Database
	}

	q := url.Values{}
	if d.TLSMode != "" {
		q.Set("sslmode", string(d.TLSMode))
	}
	if d.TLSCa != "" {
		q.Set("sslrootcert", d.TLSCa)
	}
	if d.TLSCert != "" {
		q.Set("sslcert", d.TLSCert)
	}
	if d.TLSKey != "" {
		q.Set("sslkey", d.TLSKey)
	}
	if d.TLSKeyPassword != "" {
		q.Set("sslpassword", d.TLSKeyPassword)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// DSN builds a lib/pq keyword=value connection string, the wire format
// the driver itself expects (mirroring how the teacher's state/roll
// layers build DSNs via pq.ParseURL rather than constructing a
// tls.Config by hand).
func (d *ConnectionDescriptor) DSN() string {
	var sb strings.Builder

	write := func(k, v string) {
		if v == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(quoteDSNValue(v))
	}

	write("host", d.Host)
	if d.Port != 0 {
		write("port", strconv.Itoa(d.Port))
	}
	write("user", d.User)
	write("password", d.Password)
	write("dbname", d.Database)
	write("sslmode", string(d.TLSMode))
	write("sslrootcert", d.TLSCa)
	write("sslcert", d.TLSCert)
	write("sslkey", d.TLSKey)

	return sb.String()
}

func quoteDSNValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Env returns the PG* environment variable overlay for this descriptor,
// the mapping used both by child processes and documented in §6.
func (d *ConnectionDescriptor) Env() map[string]string {
	env := map[string]string{
		"PGHOST": d.Host,
		"PGPORT": strconv.Itoa(d.Port),
		"PGUSER": d.User,
	}
	if d.Password != "" {
		env["PGPASSWORD"] = d.Password
	}
	if d.Database != "" {
		env["PGDATABASE"] = d.Database
	}
	if d.TLSMode != "" {
		env["PGSSLMODE"] = string(d.TLSMode)
	}
	if d.TLSCa != "" {
		env["PGSSLROOTCERT"] = d.TLSCa
	}
	if d.TLSCert != "" {
		env["PGSSLCERT"] = d.TLSCert
	}
	if d.TLSKey != "" {
		env["PGSSLKEY"] = d.TLSKey
	}
	if d.TLSKeyPassword != "" {
		env["PGSSLPASSWORD"] = d.TLSKeyPassword
	}
	return env
}
