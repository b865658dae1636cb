// Package gpgimport decrypts the legacy GPG symmetric-block import
// format: a file whose body is a passphrase-encrypted OpenPGP message,
// used only as an external import source (never written).
package gpgimport

import (
	"bufio"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// Decrypt reads a GPG symmetrically-encrypted message from r (armored
// or binary) and returns its decrypted body.
func Decrypt(r io.Reader, passphrase string) ([]byte, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(len("-----BEGIN"))
	if err != nil && err != io.EOF {
		return nil, err
	}

	var body io.Reader = br
	if string(peek) == "-----BEGIN" {
		block, err := armor.Decode(br)
		if err != nil {
			return nil, err
		}
		body = block.Body
	}

	prompt := func(keys []openpgp.Key, symmetric bool) ([]byte, error) {
		return []byte(passphrase), nil
	}

	md, err := openpgp.ReadMessage(body, nil, prompt, nil)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(md.UnverifiedBody)
}
