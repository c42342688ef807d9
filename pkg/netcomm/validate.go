package netcomm

import (
	"errors"
	"fmt"
)

// ValidateCredentials checks an SSID and secret against the WiFi rules:
// an SSID of 1 to 32 bytes and a secret that is empty (open network), an
// 8 to 63 character printable ASCII passphrase, or a 64 digit hex PSK.
func ValidateCredentials(ssid, secret []byte) error {
	if len(ssid) == 0 || len(ssid) > MaxSSIDLen {
		return fmt.Errorf("%w: length %d", ErrInvalidSSID, len(ssid))
	}

	switch n := len(secret); {
	case n == 0:
		return nil
	case n == PSKHexLen:
		for _, c := range secret {
			if !isHex(c) {
				return fmt.Errorf("%w: psk is not hex", ErrInvalidKey)
			}
		}
		return nil
	case n >= MinPassphraseLen && n <= MaxPassphraseLen:
		for _, c := range secret {
			if c < 0x20 || c > 0x7E {
				return fmt.Errorf("%w: non-printable character", ErrInvalidKey)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: length %d", ErrInvalidKey, n)
	}
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// statusFor maps a Driver error to a status and reason code.
func statusFor(err error) (Status, int32) {
	var ce *ConnectError
	switch {
	case err == nil:
		return StatusSuccess, 0
	case errors.As(err, &ce):
		return ce.Status, ce.Value
	case errors.Is(err, ErrAuthFailure):
		return StatusAuthFailure, 0
	case errors.Is(err, ErrNetworkNotFound):
		return StatusNetworkNotFound, 0
	case errors.Is(err, ErrUnsupportedSecurity):
		return StatusUnsupportedSecurity, 0
	case errors.Is(err, ErrRegulatory):
		return StatusRegulatoryError, 0
	case errors.Is(err, ErrIPBind):
		return StatusIPBindFailed, 0
	default:
		return StatusOtherConnectionFailure, 0
	}
}
