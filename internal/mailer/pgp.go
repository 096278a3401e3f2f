package mailer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

func readKeyRing(armoredKey string) (openpgp.EntityList, error) {
	keys, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKey))
	if err != nil {
		return nil, fmt.Errorf("parse PGP public key: %w", err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("parse PGP public key: no keys found")
	}
	return keys, nil
}

// encryptMessage replaces the body and attachments of msg with a single armored
// PGP message over their MIME rendering.
func encryptMessage(armoredKey string, msg Message) (Message, error) {
	keys, err := readKeyRing(armoredKey)
	if err != nil {
		return Message{}, err
	}

	var plaintext []byte
	if len(msg.Attachments) > 0 {
		plaintext = mimeBody(msg.Body, msg.Attachments)
	} else {
		plaintext = []byte("Content-Type: text/plain; charset=UTF-8\r\n\r\n" + normalizeNewlines(msg.Body))
	}

	armored, err := encrypt(keys, plaintext)
	if err != nil {
		return Message{}, err
	}

	msg.Body = armored
	msg.Attachments = nil
	msg.encrypted = true
	return msg, nil
}

func encrypt(keys openpgp.EntityList, plaintext []byte) (string, error) {
	var buf bytes.Buffer
	armorWriter, err := armor.Encode(&buf, "PGP MESSAGE", nil)
	if err != nil {
		return "", fmt.Errorf("create armor writer: %w", err)
	}

	encWriter, err := openpgp.Encrypt(armorWriter, keys, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("create encrypt writer: %w", err)
	}
	if _, err := encWriter.Write(plaintext); err != nil {
		return "", fmt.Errorf("write encrypted data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return "", fmt.Errorf("finish encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("finish armor: %w", err)
	}
	return buf.String(), nil
}
