// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package tlsconf

import (
	"crypto/tls"
	"strings"

	"github.com/wangtaoking1/msgnet/errors"
)

// Option is a bitmask of protocol options. Bit values follow the OpenSSL
// SSL_OP_* constants so that masks from existing configurations carry over.
type Option uint64

const (
	OpNoTicket               Option = 0x00004000
	OpNoCompression          Option = 0x00020000
	OpSingleDHUse            Option = 0x00100000
	OpCipherServerPreference Option = 0x00400000
	OpNoSSLv2                Option = 0x01000000
	OpNoSSLv3                Option = 0x02000000
	OpNoTLSv1                Option = 0x04000000
	OpNoTLSv1_2              Option = 0x08000000
	OpNoTLSv1_1              Option = 0x10000000
	OpNoTLSv1_3              Option = 0x20000000

	// OpDefaultWorkarounds disables the SSL protocols. Go never negotiates
	// them, so the bits are accepted and have no effect.
	OpDefaultWorkarounds = OpNoSSLv2 | OpNoSSLv3
)

const knownOptions = OpNoTicket | OpNoCompression | OpSingleDHUse | OpCipherServerPreference |
	OpNoSSLv2 | OpNoSSLv3 | OpNoTLSv1 | OpNoTLSv1_1 | OpNoTLSv1_2 | OpNoTLSv1_3

var optionNames = map[string]Option{
	"no-ticket":                OpNoTicket,
	"no-compression":           OpNoCompression,
	"single-dh-use":            OpSingleDHUse,
	"cipher-server-preference": OpCipherServerPreference,
	"no-sslv2":                 OpNoSSLv2,
	"no-sslv3":                 OpNoSSLv3,
	"no-tlsv1":                 OpNoTLSv1,
	"no-tlsv1.1":               OpNoTLSv1_1,
	"no-tlsv1.2":               OpNoTLSv1_2,
	"no-tlsv1.3":               OpNoTLSv1_3,
}

// protocol versions in ascending order with the bit that disables each.
var versions = []struct {
	version uint16
	disable Option
}{
	{tls.VersionTLS10, OpNoTLSv1},
	{tls.VersionTLS11, OpNoTLSv1_1},
	{tls.VersionTLS12, OpNoTLSv1_2},
	{tls.VersionTLS13, OpNoTLSv1_3},
}

// ParseOption converts a comma separated list of option names, such as
// "no-tlsv1,no-tlsv1.1", into a mask.
func ParseOption(s string) (Option, error) {
	var opt Option
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		bit, ok := optionNames[name]
		if !ok {
			return 0, errors.Errorf("unknown tls option %q", name)
		}
		opt |= bit
	}
	return opt, nil
}

// Has reports whether all bits of o2 are set in o.
func (o Option) Has(o2 Option) bool {
	return o&o2 == o2
}

func (o Option) validate() error {
	if unknown := o &^ knownOptions; unknown != 0 {
		return errors.Errorf("unsupported tls option bits 0x%x", uint64(unknown))
	}
	_, _, err := o.versionRange()
	return err
}

// versionRange returns the enabled protocol range. Zero values mean the
// mask does not restrict versions.
func (o Option) versionRange() (lo, hi uint16, err error) {
	if o&(OpNoTLSv1|OpNoTLSv1_1|OpNoTLSv1_2|OpNoTLSv1_3) == 0 {
		return 0, 0, nil
	}

	first, last := -1, -1
	for i, v := range versions {
		if o.Has(v.disable) {
			continue
		}
		if first < 0 {
			first = i
		} else if last != i-1 {
			return 0, 0, errors.New("disabled tls versions must leave a contiguous range")
		}
		last = i
	}
	if first < 0 {
		return 0, 0, errors.New("tls options disable every protocol version")
	}

	return versions[first].version, versions[last].version, nil
}

// VerifyMode is a bitmask of peer verification flags with OpenSSL
// SSL_VERIFY_* values.
type VerifyMode int

const (
	VerifyNone             VerifyMode = 0x00
	VerifyPeer             VerifyMode = 0x01
	VerifyFailIfNoPeerCert VerifyMode = 0x02
	VerifyClientOnce       VerifyMode = 0x04
)

const knownVerifyModes = VerifyPeer | VerifyFailIfNoPeerCert | VerifyClientOnce

var verifyModeNames = map[string]VerifyMode{
	"none":                 VerifyNone,
	"peer":                 VerifyPeer,
	"fail-if-no-peer-cert": VerifyFailIfNoPeerCert,
	"client-once":          VerifyClientOnce,
}

// ParseVerifyMode converts a comma separated list such as
// "peer,fail-if-no-peer-cert" into a mode.
func ParseVerifyMode(s string) (VerifyMode, error) {
	var mode VerifyMode
	for _, name := range strings.Split(s, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		bit, ok := verifyModeNames[name]
		if !ok {
			return 0, errors.Errorf("unknown tls verify mode %q", name)
		}
		mode |= bit
	}
	return mode, nil
}

func (m VerifyMode) validate() error {
	if m < 0 || m&^knownVerifyModes != 0 {
		return errors.Errorf("unsupported tls verify mode 0x%x", int(m))
	}
	if m&(VerifyFailIfNoPeerCert|VerifyClientOnce) != 0 && m&VerifyPeer == 0 {
		return errors.New("tls verify flags require the peer flag")
	}
	return nil
}

func (m VerifyMode) clientAuth() tls.ClientAuthType {
	switch {
	case m&VerifyPeer == 0:
		return tls.NoClientCert
	case m&VerifyFailIfNoPeerCert != 0:
		return tls.RequireAndVerifyClientCert
	default:
		return tls.VerifyClientCertIfGiven
	}
}
