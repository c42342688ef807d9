package discovery

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncodeCommissionableTXT(t *testing.T) {
	info := &CommissionableInfo{
		Instance:              "0011223344556677",
		Discriminator:         3840,
		Mode:                  CommissioningBasic,
		VendorID:              65521,
		ProductID:             32768,
		DeviceType:            0x0100,
		DeviceName:            "Desk Lamp",
		SessionIdleInterval:   5 * time.Second,
		SessionActiveInterval: 300 * time.Millisecond,
	}

	txt := EncodeCommissionableTXT(info)

	want := map[string]string{
		TXTKeyDiscriminator:  "3840",
		TXTKeyCommissioning:  "1",
		TXTKeyVendorProduct:  "65521+32768",
		TXTKeyDeviceType:     "256",
		TXTKeyDeviceName:     "Desk Lamp",
		TXTKeyIdleInterval:   "5000",
		TXTKeyActiveInterval: "300",
	}
	for k, v := range want {
		if txt[k] != v {
			t.Errorf("txt[%s] = %q, want %q", k, txt[k], v)
		}
	}
	if _, ok := txt[TXTKeyPairingHint]; ok {
		t.Error("PH should be omitted when zero")
	}
}

func TestEncodeCommissionableTXTTruncatesName(t *testing.T) {
	txt := EncodeCommissionableTXT(&CommissionableInfo{DeviceName: strings.Repeat("x", 40)})
	if got := len(txt[TXTKeyDeviceName]); got != MaxDeviceNameLen {
		t.Errorf("len(DN) = %d, want %d", got, MaxDeviceNameLen)
	}
}

func TestCommissionableRecordSubtypes(t *testing.T) {
	rec, err := CommissionableRecord(&CommissionableInfo{
		Instance:      "0011223344556677",
		Discriminator: 3840,
		Mode:          CommissioningBasic,
		VendorID:      65521,
	})
	if err != nil {
		t.Fatalf("CommissionableRecord: %v", err)
	}

	want := "_matterc._udp,_L3840,_S15,_V65521,_CM"
	if got := serviceWithSubtypes(rec); got != want {
		t.Errorf("service = %q, want %q", got, want)
	}
	if rec.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", rec.Port, DefaultPort)
	}
}

func TestCommissionableRecordValidation(t *testing.T) {
	if _, err := CommissionableRecord(&CommissionableInfo{Instance: "AA", Discriminator: 4096}); !errors.Is(err, ErrInvalidDiscriminator) {
		t.Errorf("discriminator 4096: err = %v", err)
	}
	if _, err := CommissionableRecord(&CommissionableInfo{}); !errors.Is(err, ErrInvalidInstanceName) {
		t.Errorf("empty instance: err = %v", err)
	}
}

func TestOperationalRecord(t *testing.T) {
	rec := OperationalRecord(&OperationalInfo{
		CompressedFabricID: 0x87E1B004E235A130,
		NodeID:             0x8FC7772401CD0696,
		TCP:                true,
	})

	if rec.Instance != "87E1B004E235A130-8FC7772401CD0696" {
		t.Errorf("Instance = %q", rec.Instance)
	}
	if rec.TXT[TXTKeyTCP] != "1" {
		t.Errorf("T = %q, want 1", rec.TXT[TXTKeyTCP])
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestTXTRecordsToStringsSorted(t *testing.T) {
	got := TXTRecordsToStrings(TXTRecordMap{"VP": "1+2", "D": "10", "CM": "1"})
	want := []string{"CM=1", "D=10", "VP=1+2"}
	if strings.Join(got, ";") != strings.Join(want, ";") {
		t.Errorf("TXTRecordsToStrings = %v, want %v", got, want)
	}
}

func TestNewInstanceName(t *testing.T) {
	a, b := NewInstanceName(), NewInstanceName()
	if len(a) != 16 || strings.ToUpper(a) != a {
		t.Errorf("NewInstanceName = %q, want 16 uppercase hex digits", a)
	}
	if a == b {
		t.Error("two instance names collided")
	}
	if err := ValidateInstanceName(a); err != nil {
		t.Errorf("ValidateInstanceName: %v", err)
	}
}

func TestValidateInstanceName(t *testing.T) {
	if err := ValidateInstanceName(strings.Repeat("a", 64)); !errors.Is(err, ErrInstanceNameTooLong) {
		t.Errorf("64 chars: err = %v", err)
	}
	if err := ValidateInstanceName("a.b"); !errors.Is(err, ErrInvalidInstanceName) {
		t.Errorf("dot: err = %v", err)
	}
}

func TestManualPairingCode(t *testing.T) {
	tests := []struct {
		discriminator uint16
		passcode      uint32
		want          string
	}{
		{3840, 20202021, "34970112332"},
		{100, 12345679, "00852707534"},
	}

	for _, tt := range tests {
		got, err := ManualPairingCode(tt.discriminator, tt.passcode)
		if err != nil {
			t.Fatalf("ManualPairingCode(%d, %d): %v", tt.discriminator, tt.passcode, err)
		}
		if got != tt.want {
			t.Errorf("ManualPairingCode(%d, %d) = %s, want %s", tt.discriminator, tt.passcode, got, tt.want)
		}
	}

	if got := FormatManualPairingCode("34970112332"); got != "3497-011-2332" {
		t.Errorf("FormatManualPairingCode = %s", got)
	}
}

func TestManualPairingCodeRejectsInvalidPasscodes(t *testing.T) {
	for _, pc := range []uint32{0, 11111111, 12345678, 99999999} {
		if _, err := ManualPairingCode(1, pc); !errors.Is(err, ErrInvalidPasscode) {
			t.Errorf("passcode %d: err = %v, want ErrInvalidPasscode", pc, err)
		}
	}
}
