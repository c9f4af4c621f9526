// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package tlsconf collects TLS key material and protocol settings through
// setters that fail at configuration time, then builds crypto/tls configs for
// listeners and clients.
package tlsconf

import (
	"crypto"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"

	"github.com/wangtaoking1/msgnet/errors"
)

// FileFormat selects the encoding of certificate and key files.
type FileFormat int

const (
	// FilePEM is base64 text with BEGIN/END markers.
	FilePEM FileFormat = iota + 1
	// FileASN1 is raw DER.
	FileASN1
)

// Purpose tells a password callback whether the key is being read or written.
type Purpose int

const (
	PurposeReading Purpose = iota
	PurposeWriting
)

// PasswordCallback returns the passphrase for encrypted key material. The
// result is truncated to maxLen bytes.
type PasswordCallback func(maxLen int, purpose Purpose) string

// MaxPasswordLen is the maxLen passed to password callbacks.
const MaxPasswordLen = 1024

// Context accumulates TLS settings. It is safe for concurrent use, but it is
// meant to be fully configured before ServerConfig or ClientConfig is called.
type Context struct {
	mtx sync.Mutex

	roots      *x509.CertPool
	options    Option
	password   PasswordCallback
	verifyMode VerifyMode
	verifySet  bool

	chain   [][]byte
	leaf    []byte
	key     crypto.PrivateKey
	dhParam []byte
}

// New returns an empty context.
func New() *Context {
	return &Context{}
}

// AddVerifyPath adds every PEM certificate found in the files of dir to the
// verification pool.
func (c *Context) AddVerifyPath(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "add verify path %s", dir)
	}
	if !info.IsDir() {
		return errors.Errorf("add verify path %s: not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "add verify path %s", dir)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return errors.Wrapf(err, "add verify path %s", dir)
		}
		// files without certificates are skipped
		c.pool().AppendCertsFromPEM(data)
	}

	return nil
}

// LoadVerifyFile adds the PEM certificates of file to the verification pool.
func (c *Context) LoadVerifyFile(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "load verify file %s", file)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if !c.pool().AppendCertsFromPEM(data) {
		return errors.Errorf("load verify file %s: no certificates found", file)
	}

	return nil
}

func (c *Context) pool() *x509.CertPool {
	if c.roots == nil {
		c.roots = x509.NewCertPool()
	}
	return c.roots
}

// SetOptions adds opts to the options already set.
func (c *Context) SetOptions(opts Option) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	merged := c.options | opts
	if err := merged.validate(); err != nil {
		return errors.WithMessage(err, "set options")
	}
	c.options = merged

	return nil
}

// Options returns the options set so far.
func (c *Context) Options() Option {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.options
}

// SetPasswordCallback sets the callback used to decrypt key files loaded
// afterwards.
func (c *Context) SetPasswordCallback(cb PasswordCallback) error {
	if cb == nil {
		return errors.New("set password callback: nil callback")
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.password = cb

	return nil
}

// SetVerifyMode sets how peers are verified.
func (c *Context) SetVerifyMode(mode VerifyMode) error {
	if err := mode.validate(); err != nil {
		return errors.WithMessage(err, "set verify mode")
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.verifyMode = mode
	c.verifySet = true

	return nil
}

// UseCertificateChainFile loads a PEM file holding the leaf certificate
// followed by its intermediates.
func (c *Context) UseCertificateChainFile(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "use certificate chain file %s", file)
	}

	var chain [][]byte
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return errors.Wrapf(err, "use certificate chain file %s", file)
		}
		chain = append(chain, block.Bytes)
	}
	if len(chain) == 0 {
		return errors.Errorf("use certificate chain file %s: no certificates found", file)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.chain = chain

	return nil
}

// UseCertificateFile loads the leaf certificate.
func (c *Context) UseCertificateFile(file string, format FileFormat) error {
	der, err := readDER(file, format, "CERTIFICATE")
	if err != nil {
		return errors.WithMessagef(err, "use certificate file %s", file)
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		return errors.Wrapf(err, "use certificate file %s", file)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.leaf = der

	return nil
}

// UsePrivateKeyFile loads an RSA, ECDSA or Ed25519 private key.
func (c *Context) UsePrivateKeyFile(file string, format FileFormat) error {
	key, err := c.loadKey(file, format)
	if err != nil {
		return errors.WithMessagef(err, "use private key file %s", file)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.key = key

	return nil
}

// UseRSAPrivateKeyFile loads a private key that must be RSA.
func (c *Context) UseRSAPrivateKeyFile(file string, format FileFormat) error {
	key, err := c.loadKey(file, format)
	if err != nil {
		return errors.WithMessagef(err, "use rsa private key file %s", file)
	}
	if _, ok := key.(*rsa.PrivateKey); !ok {
		return errors.Errorf("use rsa private key file %s: not an rsa key", file)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.key = key

	return nil
}

// UseTmpDHFile loads PEM encoded Diffie-Hellman parameters. The parameters
// are validated and retained; crypto/tls only negotiates ECDHE key exchange.
func (c *Context) UseTmpDHFile(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "use tmp dh file %s", file)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "DH PARAMETERS" {
		return errors.Errorf("use tmp dh file %s: no DH PARAMETERS block", file)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.dhParam = block.Bytes

	return nil
}

func (c *Context) loadKey(file string, format FileFormat) (crypto.PrivateKey, error) {
	switch format {
	case FileASN1:
		der, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrap(err, "read key")
		}
		return parseKey(der)
	case FilePEM:
	default:
		return nil, errors.Errorf("unknown file format %d", format)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "read key")
	}
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, errors.New("no private key found")
		}
		if block.Type != "PRIVATE KEY" && block.Type != "RSA PRIVATE KEY" && block.Type != "EC PRIVATE KEY" {
			continue
		}

		der := block.Bytes
		//nolint:staticcheck // legacy encrypted PEM is the format OpenSSL writes for -des3/-aes256 keys
		if x509.IsEncryptedPEMBlock(block) {
			der, err = c.decrypt(block)
			if err != nil {
				return nil, err
			}
		}
		return parseKey(der)
	}
}

func (c *Context) decrypt(block *pem.Block) ([]byte, error) {
	c.mtx.Lock()
	cb := c.password
	c.mtx.Unlock()
	if cb == nil {
		return nil, errors.New("key is encrypted and no password callback is set")
	}

	password := cb(MaxPasswordLen, PurposeReading)
	if len(password) > MaxPasswordLen {
		password = password[:MaxPasswordLen]
	}
	//nolint:staticcheck
	der, err := x509.DecryptPEMBlock(block, []byte(password))
	if err != nil {
		return nil, errors.Wrap(err, "decrypt key")
	}

	return der, nil
}

func parseKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key encoding")
}

func readDER(file string, format FileFormat, blockType string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	switch format {
	case FileASN1:
		return data, nil
	case FilePEM:
		for {
			var block *pem.Block
			block, data = pem.Decode(data)
			if block == nil {
				return nil, errors.Errorf("no %s block found", blockType)
			}
			if block.Type == blockType {
				return block.Bytes, nil
			}
		}
	default:
		return nil, errors.Errorf("unknown file format %d", format)
	}
}

// keyPair assembles the configured certificate. It returns false when no
// certificate or key has been set.
func (c *Context) keyPair() (tls.Certificate, bool, error) {
	leaf := c.leaf
	var intermediates [][]byte
	if len(c.chain) > 0 {
		if leaf == nil {
			leaf = c.chain[0]
		}
		intermediates = c.chain[1:]
	}

	if leaf == nil && c.key == nil {
		return tls.Certificate{}, false, nil
	}
	if leaf == nil {
		return tls.Certificate{}, false, errors.New("private key set without a certificate")
	}
	if c.key == nil {
		return tls.Certificate{}, false, errors.New("certificate set without a private key")
	}

	cert, err := x509.ParseCertificate(leaf)
	if err != nil {
		return tls.Certificate{}, false, errors.Wrap(err, "parse certificate")
	}
	signer, ok := c.key.(crypto.Signer)
	if !ok {
		return tls.Certificate{}, false, errors.New("private key cannot sign")
	}
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(cert.PublicKey) {
		return tls.Certificate{}, false, errors.New("private key does not match certificate")
	}

	raw := make([][]byte, 0, 1+len(intermediates))
	raw = append(raw, leaf)
	raw = append(raw, intermediates...)

	return tls.Certificate{Certificate: raw, PrivateKey: c.key, Leaf: cert}, true, nil
}

func (c *Context) base() (*tls.Config, error) {
	lo, hi, err := c.options.versionRange()
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion:             lo,
		MaxVersion:             hi,
		SessionTicketsDisabled: c.options.Has(OpNoTicket),
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}

	return cfg, nil
}

// ServerConfig builds a listener config. A certificate and key are required.
func (c *Context) ServerConfig() (*tls.Config, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	cfg, err := c.base()
	if err != nil {
		return nil, errors.WithMessage(err, "server config")
	}
	cert, ok, err := c.keyPair()
	if err != nil {
		return nil, errors.WithMessage(err, "server config")
	}
	if !ok {
		return nil, errors.New("server config: no certificate configured")
	}

	cfg.Certificates = []tls.Certificate{cert}
	cfg.ClientAuth = c.verifyMode.clientAuth()
	cfg.ClientCAs = c.roots

	return cfg, nil
}

// ClientConfig builds a dialer config for serverName. A certificate, when
// configured, is offered to the server.
func (c *Context) ClientConfig(serverName string) (*tls.Config, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	cfg, err := c.base()
	if err != nil {
		return nil, errors.WithMessage(err, "client config")
	}
	cert, ok, err := c.keyPair()
	if err != nil {
		return nil, errors.WithMessage(err, "client config")
	}
	if ok {
		cfg.Certificates = []tls.Certificate{cert}
	}

	cfg.ServerName = serverName
	cfg.RootCAs = c.roots
	if c.verifySet && c.verifyMode&VerifyPeer == 0 {
		cfg.InsecureSkipVerify = true //nolint:gosec // explicitly requested verify mode none
	}

	return cfg, nil
}
