/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package envelope

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/codeops-vault/vault/internal/vaulterr"
)

// envelopeVersion is the only version this codec produces or accepts.
const envelopeVersion byte = 1

const dekSize = 32

// parsed is the decoded, still-encrypted form of an envelope: header
// fields plus the two ciphertext blocks, neither of which has been
// opened yet.
type parsed struct {
	keyID         string
	dekIV         []byte
	wrappedDEK    []byte // AES-GCM(DEK) || 16B tag
	dataIV        []byte
	dataCiphertext []byte // AES-GCM(plaintext) || 16B tag
}

// encode serializes the wire format:
//
//	[1B version]
//	[4B BE key-id length][key-id UTF-8]
//	[4B BE DEK-block length][12B DEK IV][wrapped DEK || tag]
//	[12B data IV]
//	[data ciphertext || tag]
//
// and returns the base64 encoding of the result.
func encode(keyID string, dekIV, wrappedDEK, dataIV, dataCiphertext []byte) string {
	dekBlock := make([]byte, 0, len(dekIV)+len(wrappedDEK))
	dekBlock = append(dekBlock, dekIV...)
	dekBlock = append(dekBlock, wrappedDEK...)

	buf := make([]byte, 0, 1+4+len(keyID)+4+len(dekBlock)+len(dataIV)+len(dataCiphertext))
	buf = append(buf, envelopeVersion)
	buf = appendUint32Prefixed(buf, []byte(keyID))
	buf = appendUint32Prefixed(buf, dekBlock)
	buf = append(buf, dataIV...)
	buf = append(buf, dataCiphertext...)

	return base64.StdEncoding.EncodeToString(buf)
}

func appendUint32Prefixed(buf, data []byte) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(data)))
	buf = append(buf, lenBytes[:]...)
	return append(buf, data...)
}

// decode base64-decodes and parses an envelope's header, validating that
// every declared length fits within the remaining buffer. It performs no
// cryptographic operation.
func decode(env string) (*parsed, error) {
	if env == "" {
		return nil, vaulterr.InvalidInput("envelope must not be empty")
	}
	buf, err := base64.StdEncoding.DecodeString(env)
	if err != nil {
		return nil, vaulterr.IntegrityFailure("envelope is not valid base64")
	}

	r := reader{buf: buf}
	version, err := r.byte()
	if err != nil {
		return nil, vaulterr.IntegrityFailure("envelope truncated before version byte")
	}
	if version != envelopeVersion {
		return nil, vaulterr.IntegrityFailure("unsupported envelope version %d", version)
	}

	keyIDBytes, err := r.lengthPrefixed()
	if err != nil {
		return nil, vaulterr.IntegrityFailure("envelope truncated reading key id: %v", err)
	}

	dekBlock, err := r.lengthPrefixed()
	if err != nil {
		return nil, vaulterr.IntegrityFailure("envelope truncated reading DEK block: %v", err)
	}
	if len(dekBlock) < gcmNonceSize+dekSize+gcmTagSize {
		return nil, vaulterr.IntegrityFailure("DEK block too short")
	}

	dataIV, err := r.take(gcmNonceSize)
	if err != nil {
		return nil, vaulterr.IntegrityFailure("envelope truncated reading data IV: %v", err)
	}
	dataCiphertext := r.rest()
	if len(dataCiphertext) < gcmTagSize {
		return nil, vaulterr.IntegrityFailure("data ciphertext too short to contain a tag")
	}

	return &parsed{
		keyID:          string(keyIDBytes),
		dekIV:          dekBlock[:gcmNonceSize],
		wrappedDEK:     dekBlock[gcmNonceSize:],
		dataIV:         dataIV,
		dataCiphertext: dataCiphertext,
	}, nil
}

const gcmTagSize = 16

// reader is a minimal cursor over a byte slice used while parsing the
// envelope header; every read is bounds-checked against the remaining
// buffer so a truncated or adversarial envelope cannot read out of bounds.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errTruncated
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) lengthPrefixed() ([]byte, error) {
	lenBytes, err := r.take(4)
	if err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBytes)
	return r.take(int(n))
}

func (r *reader) rest() []byte {
	return r.buf[r.pos:]
}

var errTruncated = vaulterr.IntegrityFailure("unexpected end of envelope")
