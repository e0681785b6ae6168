package handler

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strconv"

	"group-messaging-service/internal/domain"
)

const maxIDLength = 64

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)

var errInvalidCiphertext = errors.New("invalid ciphertext")

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLength && idRegex.MatchString(id)
}

func validateUserID(userID string) error {
	if !validID(userID) {
		return domain.ErrInvalidUserID
	}
	return nil
}

func validateGroupID(groupID string) error {
	if !validID(groupID) {
		return domain.ErrInvalidGroupID
	}
	return nil
}

// decodePublicKey はBase64の公開鍵をデコードする。中身の形式は検証しない。
func decodePublicKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(key) == 0 {
		return nil, domain.ErrInvalidPublicKey
	}
	return key, nil
}

// decodeCiphertexts は宛先ごとのBase64暗号文をデコードする。
// 空の暗号文、不正な宛先ID、不正なBase64はエラーとする。
func decodeCiphertexts(encoded map[string]string) (map[string][]byte, error) {
	if len(encoded) == 0 {
		return nil, domain.ErrEmptyCiphertexts
	}
	ciphertexts := make(map[string][]byte, len(encoded))
	for recipientID, b64 := range encoded {
		if !validID(recipientID) {
			return nil, domain.ErrInvalidUserID
		}
		ct, err := base64.StdEncoding.DecodeString(b64)
		if err != nil || len(ct) == 0 {
			return nil, errInvalidCiphertext
		}
		ciphertexts[recipientID] = ct
	}
	return ciphertexts, nil
}

func encodeCiphertexts(ciphertexts map[string][]byte) map[string]string {
	encoded := make(map[string]string, len(ciphertexts))
	for recipientID, ct := range ciphertexts {
		encoded[recipientID] = base64.StdEncoding.EncodeToString(ct)
	}
	return encoded
}

func parseAfterSequence(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
