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
	"crypto/rand"
	"math/big"

	"github.com/codeops-vault/vault/internal/vaulterr"
)

const (
	maxRandomStringLength = 4096

	alphaUpperLower = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	numericDigits   = "0123456789"
	hexDigits       = "0123456789abcdef"
	asciiPrintable  = " !\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"
)

// namedCharsets maps the recognized charset names of GenerateRandomString
// to their alphabets. Any name not in this map is treated as the literal
// alphabet to draw from.
var namedCharsets = map[string]string{
	"alphanumeric":    alphaUpperLower + numericDigits,
	"alpha":           alphaUpperLower,
	"numeric":         numericDigits,
	"hex":             hexDigits,
	"ascii-printable": asciiPrintable,
}

// GenerateRandomString draws length characters uniformly at random from
// the named charset (alphanumeric, alpha, numeric, hex, ascii-printable),
// or from charset itself taken literally as an alphabet if the name is
// not recognized.
func GenerateRandomString(length int, charset string) (string, error) {
	if length < 1 || length > maxRandomStringLength {
		return "", vaulterr.InvalidInput("length must be in [1, %d], got %d", maxRandomStringLength, length)
	}
	alphabet, ok := namedCharsets[charset]
	if !ok {
		alphabet = charset
	}
	if len(alphabet) == 0 {
		return "", vaulterr.InvalidInput("charset %q resolves to an empty alphabet", charset)
	}

	out := make([]byte, length)
	alphabetSize := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", vaulterr.Internal("drawing random index: %v", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
