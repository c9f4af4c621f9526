// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package tlsconf

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangtaoking1/msgnet/tlsconf/tlstest"
)

func generate(t *testing.T) (string, *tlstest.Files) {
	t.Helper()
	dir := t.TempDir()
	files, err := tlstest.Generate(dir, "127.0.0.1", "localhost")
	require.NoError(t, err)
	return dir, files
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func pemToDER(t *testing.T, file string) []byte {
	t.Helper()
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	return block.Bytes
}

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		accepted <- conn
	}()
	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server := <-accepted
	require.NotNil(t, server)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	return server, client
}

func TestContext_VerifyFiles(t *testing.T) {
	dir, files := generate(t)
	c := New()

	assert.Error(t, c.LoadVerifyFile(filepath.Join(dir, "missing.pem")))
	assert.Error(t, c.LoadVerifyFile(files.KeyFile))
	assert.NoError(t, c.LoadVerifyFile(files.CAFile))

	caDir := filepath.Join(dir, "cas")
	require.NoError(t, os.Mkdir(caDir, 0o700))
	data, err := os.ReadFile(files.CAFile)
	require.NoError(t, err)
	writeFile(t, caDir, "root.pem", data)
	writeFile(t, caDir, "README", []byte("not a certificate"))

	assert.NoError(t, c.AddVerifyPath(caDir))
	assert.Error(t, c.AddVerifyPath(files.CAFile))
	assert.Error(t, c.AddVerifyPath(filepath.Join(dir, "nope")))
}

func TestContext_SetOptions(t *testing.T) {
	c := New()
	require.NoError(t, c.SetOptions(OpNoTLSv1))
	require.NoError(t, c.SetOptions(OpNoTLSv1_1|OpNoTicket))
	assert.Equal(t, OpNoTLSv1|OpNoTLSv1_1|OpNoTicket, c.Options())

	// rejected masks leave the previous value in place
	assert.Error(t, c.SetOptions(OpNoTLSv1_2|OpNoTLSv1_3))
	assert.Error(t, c.SetOptions(Option(1)<<40))
	assert.Equal(t, OpNoTLSv1|OpNoTLSv1_1|OpNoTicket, c.Options())
}

func TestContext_SetVerifyMode(t *testing.T) {
	c := New()
	assert.NoError(t, c.SetVerifyMode(VerifyPeer|VerifyFailIfNoPeerCert))
	assert.Error(t, c.SetVerifyMode(VerifyFailIfNoPeerCert))
	assert.Error(t, c.SetVerifyMode(VerifyMode(0x80)))
	assert.Error(t, c.SetPasswordCallback(nil))
}

func TestContext_CertificateFormats(t *testing.T) {
	dir, files := generate(t)

	c := New()
	assert.NoError(t, c.UseCertificateFile(files.CertFile, FilePEM))
	assert.Error(t, c.UseCertificateFile(files.KeyFile, FilePEM))
	assert.Error(t, c.UseCertificateFile(files.CertFile, FileFormat(9)))

	derFile := writeFile(t, dir, "cert.der", pemToDER(t, files.CertFile))
	assert.NoError(t, c.UseCertificateFile(derFile, FileASN1))
	assert.Error(t, c.UseCertificateFile(files.CertFile, FileASN1))

	keyDER := writeFile(t, dir, "key.der", pemToDER(t, files.KeyFile))
	assert.NoError(t, c.UsePrivateKeyFile(keyDER, FileASN1))
	assert.NoError(t, c.UsePrivateKeyFile(files.KeyFile, FilePEM))
	assert.Error(t, c.UsePrivateKeyFile(files.CertFile, FilePEM))

	_, err := c.ServerConfig()
	assert.NoError(t, err)
}

func TestContext_ChainFile(t *testing.T) {
	dir, files := generate(t)

	c := New()
	assert.Error(t, c.UseCertificateChainFile(files.KeyFile))
	assert.Error(t, c.UseCertificateChainFile(filepath.Join(dir, "missing.pem")))
	require.NoError(t, c.UseCertificateChainFile(files.ChainFile))
	require.NoError(t, c.UsePrivateKeyFile(files.KeyFile, FilePEM))

	cfg, err := c.ServerConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Len(t, cfg.Certificates[0].Certificate, 2)
}

func TestContext_RSAPrivateKeyFile(t *testing.T) {
	dir, files := generate(t)

	c := New()
	assert.Error(t, c.UseRSAPrivateKeyFile(files.KeyFile, FilePEM))

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	rsaFile := writeFile(t, dir, "rsa.pem", pkcs1)
	assert.NoError(t, c.UseRSAPrivateKeyFile(rsaFile, FilePEM))

	require.NoError(t, c.UseCertificateFile(files.CertFile, FilePEM))
	_, err = c.ServerConfig()
	assert.ErrorContains(t, err, "does not match")
}

func TestContext_EncryptedKey(t *testing.T) {
	dir, files := generate(t)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	//nolint:staticcheck
	block, err := x509.EncryptPEMBlock(rand.Reader, "EC PRIVATE KEY", der, []byte("secret"), x509.PEMCipherAES256)
	require.NoError(t, err)
	keyFile := writeFile(t, dir, "enc.pem", pem.EncodeToMemory(block))

	c := New()
	assert.ErrorContains(t, c.UsePrivateKeyFile(keyFile, FilePEM), "no password callback")

	require.NoError(t, c.SetPasswordCallback(func(int, Purpose) string { return "wrong" }))
	assert.Error(t, c.UsePrivateKeyFile(keyFile, FilePEM))

	var gotMax int
	var gotPurpose Purpose = -1
	require.NoError(t, c.SetPasswordCallback(func(maxLen int, purpose Purpose) string {
		gotMax, gotPurpose = maxLen, purpose
		return "secret"
	}))
	assert.NoError(t, c.UsePrivateKeyFile(keyFile, FilePEM))
	assert.Equal(t, MaxPasswordLen, gotMax)
	assert.Equal(t, PurposeReading, gotPurpose)

	// the key does not belong to the generated certificate
	require.NoError(t, c.UseCertificateFile(files.CertFile, FilePEM))
	_, err = c.ServerConfig()
	assert.Error(t, err)
}

func TestContext_TmpDHFile(t *testing.T) {
	dir, files := generate(t)

	c := New()
	assert.Error(t, c.UseTmpDHFile(files.CertFile))
	dh := pem.EncodeToMemory(&pem.Block{Type: "DH PARAMETERS", Bytes: []byte{0x30, 0x00}})
	assert.NoError(t, c.UseTmpDHFile(writeFile(t, dir, "dh.pem", dh)))
}

func TestContext_ServerConfigRequiresCertificate(t *testing.T) {
	_, files := generate(t)

	c := New()
	_, err := c.ServerConfig()
	assert.Error(t, err)

	require.NoError(t, c.UsePrivateKeyFile(files.KeyFile, FilePEM))
	_, err = c.ServerConfig()
	assert.Error(t, err)

	cfg, err := c.ClientConfig("localhost")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestContext_ClientConfig(t *testing.T) {
	_, files := generate(t)

	c := New()
	require.NoError(t, c.SetOptions(OpNoTLSv1|OpNoTLSv1_1|OpNoTicket))
	cfg, err := c.ClientConfig("localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.ServerName)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.True(t, cfg.SessionTicketsDisabled)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MaxVersion)
	assert.Empty(t, cfg.Certificates)

	require.NoError(t, c.SetVerifyMode(VerifyNone))
	require.NoError(t, c.UseCertificateFile(files.CertFile, FilePEM))
	require.NoError(t, c.UsePrivateKeyFile(files.KeyFile, FilePEM))
	cfg, err = c.ClientConfig("localhost")
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Len(t, cfg.Certificates, 1)
}

func TestContext_MutualHandshake(t *testing.T) {
	_, files := generate(t)

	server := New()
	require.NoError(t, server.UseCertificateFile(files.CertFile, FilePEM))
	require.NoError(t, server.UsePrivateKeyFile(files.KeyFile, FilePEM))
	require.NoError(t, server.LoadVerifyFile(files.CAFile))
	require.NoError(t, server.SetVerifyMode(VerifyPeer|VerifyFailIfNoPeerCert))
	serverCfg, err := server.ServerConfig()
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, serverCfg.ClientAuth)

	client := New()
	require.NoError(t, client.LoadVerifyFile(files.CAFile))
	require.NoError(t, client.UseCertificateFile(files.CertFile, FilePEM))
	require.NoError(t, client.UsePrivateKeyFile(files.KeyFile, FilePEM))
	clientCfg, err := client.ClientConfig("localhost")
	require.NoError(t, err)

	a, b := tcpPair(t)
	srv := tls.Server(a, serverCfg)
	cli := tls.Client(b, clientCfg)
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Handshake()
	}()
	require.NoError(t, cli.Handshake())
	require.NoError(t, <-errc)
	assert.Len(t, srv.ConnectionState().PeerCertificates, 1)
}

func TestContext_HandshakeRejectsMissingClientCert(t *testing.T) {
	_, files := generate(t)

	server := New()
	require.NoError(t, server.UseCertificateFile(files.CertFile, FilePEM))
	require.NoError(t, server.UsePrivateKeyFile(files.KeyFile, FilePEM))
	require.NoError(t, server.LoadVerifyFile(files.CAFile))
	require.NoError(t, server.SetVerifyMode(VerifyPeer|VerifyFailIfNoPeerCert))
	serverCfg, err := server.ServerConfig()
	require.NoError(t, err)

	client := New()
	require.NoError(t, client.LoadVerifyFile(files.CAFile))
	clientCfg, err := client.ClientConfig("localhost")
	require.NoError(t, err)

	a, b := tcpPair(t)
	srv := tls.Server(a, serverCfg)
	cli := tls.Client(b, clientCfg)
	errc := make(chan error, 1)
	go func() {
		err := srv.Handshake()
		_ = a.Close()
		errc <- err
	}()
	_ = cli.Handshake()
	// with TLS 1.3 the client learns about the rejection on first read
	_, _ = cli.Read(make([]byte, 1))
	_ = b.Close()
	assert.Error(t, <-errc)
}
