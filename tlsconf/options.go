// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package tlsconf

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/wangtaoking1/msgnet/errors"
)

// Options contains the file and flag based TLS configuration.
type Options struct {
	Enabled    bool   `json:"enabled"     mapstructure:"enabled"`
	CertFile   string `json:"cert-file"   mapstructure:"cert-file"`
	ChainFile  string `json:"chain-file"  mapstructure:"chain-file"`
	KeyFile    string `json:"key-file"    mapstructure:"key-file"`
	RSAKey     bool   `json:"rsa-key"     mapstructure:"rsa-key"`
	Format     string `json:"format"      mapstructure:"format"`
	CAFile     string `json:"ca-file"     mapstructure:"ca-file"`
	CAPath     string `json:"ca-path"     mapstructure:"ca-path"`
	DHFile     string `json:"dh-file"     mapstructure:"dh-file"`
	Options    string `json:"options"     mapstructure:"options"`
	VerifyMode string `json:"verify-mode" mapstructure:"verify-mode"`
	Password   string `json:"-"           mapstructure:"password"`
	ServerName string `json:"server-name" mapstructure:"server-name"`
}

// NewOptions creates an Options object with default parameters.
func NewOptions() *Options {
	return &Options{
		Format:  "pem",
		Options: "no-sslv2,no-sslv3",
	}
}

// Validate validates the options fields.
func (o *Options) Validate() []error {
	if !o.Enabled {
		return nil
	}

	var errs []error
	if _, err := parseFormat(o.Format); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseOption(o.Options); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseVerifyMode(o.VerifyMode); err != nil {
		errs = append(errs, err)
	}
	if (o.CertFile != "" || o.ChainFile != "") != (o.KeyFile != "") {
		errs = append(errs, fmt.Errorf("tls certificate and key must be set together"))
	}

	return errs
}

// AddFlags adds flags for tls to the specified FlagSet object.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefix string) {
	fs.BoolVar(&o.Enabled, prefix+"enabled", o.Enabled, "Enable TLS on the connection.")
	fs.StringVar(&o.CertFile, prefix+"cert-file", o.CertFile, "Certificate `FILE`.")
	fs.StringVar(&o.ChainFile, prefix+"chain-file", o.ChainFile,
		"PEM certificate chain `FILE`, leaf first. Used when cert-file is empty.")
	fs.StringVar(&o.KeyFile, prefix+"key-file", o.KeyFile, "Private key `FILE`.")
	fs.BoolVar(&o.RSAKey, prefix+"rsa-key", o.RSAKey, "Require the private key to be RSA.")
	fs.StringVar(&o.Format, prefix+"format", o.Format, "Encoding of cert-file and key-file, pem or asn1.")
	fs.StringVar(&o.CAFile, prefix+"ca-file", o.CAFile, "PEM `FILE` of certificates used to verify the peer.")
	fs.StringVar(&o.CAPath, prefix+"ca-path", o.CAPath, "`DIR` of PEM certificates used to verify the peer.")
	fs.StringVar(&o.DHFile, prefix+"dh-file", o.DHFile, "PEM Diffie-Hellman parameters `FILE`.")
	fs.StringVar(&o.Options, prefix+"options", o.Options,
		"Comma separated protocol options, e.g. no-tlsv1,no-tlsv1.1,no-ticket.")
	fs.StringVar(&o.VerifyMode, prefix+"verify-mode", o.VerifyMode,
		"Comma separated verify flags: none, peer, fail-if-no-peer-cert, client-once.")
	fs.StringVar(&o.Password, prefix+"password", o.Password, "Passphrase of an encrypted private key.")
	fs.StringVar(&o.ServerName, prefix+"server-name", o.ServerName, "Server name checked by clients.")
}

// NewContext applies the options to a new Context.
func (o *Options) NewContext() (*Context, error) {
	format, err := parseFormat(o.Format)
	if err != nil {
		return nil, err
	}
	opts, err := ParseOption(o.Options)
	if err != nil {
		return nil, err
	}

	c := New()
	if err := c.SetOptions(opts); err != nil {
		return nil, err
	}
	if o.VerifyMode != "" {
		mode, err := ParseVerifyMode(o.VerifyMode)
		if err != nil {
			return nil, err
		}
		if err := c.SetVerifyMode(mode); err != nil {
			return nil, err
		}
	}
	if o.Password != "" {
		password := o.Password
		if err := c.SetPasswordCallback(func(int, Purpose) string { return password }); err != nil {
			return nil, err
		}
	}

	steps := []struct {
		set bool
		fn  func() error
	}{
		{o.CAFile != "", func() error { return c.LoadVerifyFile(o.CAFile) }},
		{o.CAPath != "", func() error { return c.AddVerifyPath(o.CAPath) }},
		{o.ChainFile != "", func() error { return c.UseCertificateChainFile(o.ChainFile) }},
		{o.CertFile != "", func() error { return c.UseCertificateFile(o.CertFile, format) }},
		{o.KeyFile != "" && o.RSAKey, func() error { return c.UseRSAPrivateKeyFile(o.KeyFile, format) }},
		{o.KeyFile != "" && !o.RSAKey, func() error { return c.UsePrivateKeyFile(o.KeyFile, format) }},
		{o.DHFile != "", func() error { return c.UseTmpDHFile(o.DHFile) }},
	}
	for _, step := range steps {
		if !step.set {
			continue
		}
		if err := step.fn(); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func parseFormat(s string) (FileFormat, error) {
	switch s {
	case "", "pem", "PEM":
		return FilePEM, nil
	case "asn1", "ASN1", "der", "DER":
		return FileASN1, nil
	default:
		return 0, errors.Errorf("unknown tls file format %q", s)
	}
}
