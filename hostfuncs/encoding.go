package hostfuncs

import (
	"encoding/base64"
	"strings"
)

// Payload encodings accepted by data-carrying ops.
const (
	EncodingUTF8   = "utf8"
	EncodingBase64 = "base64"
)

func decodeData(data, encoding string) ([]byte, *ErrorResponse) {
	switch strings.ToLower(encoding) {
	case "", EncodingUTF8, "utf-8":
		return []byte(data), nil
	case EncodingBase64:
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, NewValidationError("invalid base64 data: " + err.Error()).Ptr()
		}
		return b, nil
	default:
		return nil, NewValidationError("unsupported encoding: " + encoding).Ptr()
	}
}

func encodeData(data []byte, encoding string) (string, *ErrorResponse) {
	switch strings.ToLower(encoding) {
	case "", EncodingUTF8, "utf-8":
		return strings.ToValidUTF8(string(data), "�"), nil
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", NewValidationError("unsupported encoding: " + encoding).Ptr()
	}
}
