package discovery

import (
	"fmt"
	"strconv"
)

// Setup passcode limits.
const (
	MinPasscode = 1
	MaxPasscode = 99999998

	// ManualCodeLength is the length of the short manual pairing code.
	ManualCodeLength = 11
)

// ValidatePasscode rejects out-of-range and trivially guessable passcodes.
func ValidatePasscode(passcode uint32) error {
	if passcode < MinPasscode || passcode > MaxPasscode {
		return fmt.Errorf("%w: %d out of range", ErrInvalidPasscode, passcode)
	}
	switch passcode {
	case 11111111, 22222222, 33333333, 44444444, 55555555,
		66666666, 77777777, 88888888, 12345678, 87654321:
		return fmt.Errorf("%w: %08d", ErrInvalidPasscode, passcode)
	}
	return nil
}

// ManualPairingCode returns the 11-digit manual pairing code.
//
// Layout: one digit carrying the top two bits of the short discriminator,
// five digits carrying the low two bits of the short discriminator and the
// low 14 bits of the passcode, four digits carrying the high passcode bits,
// and a Verhoeff check digit.
func ManualPairingCode(discriminator uint16, passcode uint32) (string, error) {
	if discriminator > MaxDiscriminator {
		return "", ErrInvalidDiscriminator
	}
	if err := ValidatePasscode(passcode); err != nil {
		return "", err
	}

	short := uint32(discriminator >> 8)
	chunk1 := short >> 2
	chunk2 := (short&0x3)<<14 | passcode&0x3FFF
	chunk3 := passcode >> 14

	code := fmt.Sprintf("%01d%05d%04d", chunk1, chunk2, chunk3)
	return code + strconv.Itoa(verhoeffCheck(code)), nil
}

// FormatManualPairingCode groups the code as XXXX-XXX-XXXX for display.
func FormatManualPairingCode(code string) string {
	if len(code) != ManualCodeLength {
		return code
	}
	return code[:4] + "-" + code[4:7] + "-" + code[7:]
}

var verhoeffD = [10][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
	{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
	{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
	{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
	{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
	{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
	{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
	{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
	{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
}

var verhoeffP = [8][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
	{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
	{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
	{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
	{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
	{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
	{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
}

var verhoeffInv = [10]int{0, 4, 3, 2, 1, 5, 6, 7, 8, 9}

func verhoeffCheck(digits string) int {
	c := 0
	for i := len(digits) - 1; i >= 0; i-- {
		pos := len(digits) - i
		c = verhoeffD[c][verhoeffP[pos%8][digits[i]-'0']]
	}
	return verhoeffInv[c]
}
