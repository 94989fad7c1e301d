package parse

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/camsync/internal/testutil"
)

func TestParseGPRMC_Valid(t *testing.T) {
	pos := testutil.VelodynePositioning(testutil.GPRMC(2024, 3, 4, 12, 34, 56, 'A'))

	got, err := ParseGPRMC(pos)
	testutil.AssertNoError(t, err)

	want := RMC{
		Hour: 12, Minute: 34, Second: 56,
		Year: 2024, Month: 3, Day: 4,
		TimeValid: true, DateValid: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseGPRMC mismatch (-want +got):\n%s", diff)
	}
}

func TestParseGPRMC_VoidFix(t *testing.T) {
	pos := testutil.VelodynePositioning(testutil.GPRMC(2024, 3, 4, 12, 34, 56, 'V'))
	_, err := ParseGPRMC(pos)
	if !errors.Is(err, ErrGPSNotConnected) {
		t.Fatalf("expected ErrGPSNotConnected, got %v", err)
	}
}

func TestParseGPRMC_OutOfRange(t *testing.T) {
	tests := []struct {
		name      string
		sentence  string
		timeValid bool
		dateValid bool
	}{
		{"hour 25", "$GPRMC,253456,A,,,,,,,040324,,,A*00", false, true},
		{"minute 60", "$GPRMC,126056,A,,,,,,,040324,,,A*00", false, true},
		{"feb 30", "$GPRMC,123456,A,,,,,,,300224,,,A*00", true, false},
		{"feb 29 leap year", "$GPRMC,123456,A,,,,,,,290224,,,A*00", true, true},
		{"feb 29 non-leap", "$GPRMC,123456,A,,,,,,,290223,,,A*00", true, false},
		{"month 13", "$GPRMC,123456,A,,,,,,,011324,,,A*00", true, false},
		{"non-digit time", "$GPRMC,12x456,A,,,,,,,040324,,,A*00", false, true},
		{"empty time", "$GPRMC,,A,,,,,,,040324,,,A*00", false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseGPRMC(testutil.VelodynePositioning(tc.sentence))
			testutil.AssertNoError(t, err)
			if got.TimeValid != tc.timeValid || got.DateValid != tc.dateValid {
				t.Errorf("validity = time:%v date:%v, want time:%v date:%v",
					got.TimeValid, got.DateValid, tc.timeValid, tc.dateValid)
			}
		})
	}
}

func TestParseGPRMC_Malformed(t *testing.T) {
	tests := []struct {
		name string
		pos  []byte
	}{
		{"wrong size", make([]byte, 100)},
		{"empty", testutil.VelodynePositioning("")},
		{"not RMC", testutil.VelodynePositioning("$GPGGA,123456,,,,,,,,")},
		{"truncated", testutil.VelodynePositioning("$GPRMC,123456,A,4807")},
		{"bad status", testutil.VelodynePositioning("$GPRMC,123456,X,,,,,,,040324,,,A*00")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseGPRMC(tc.pos); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNMEAField(t *testing.T) {
	s := []byte("$GPRMC,1,A,,x*7F")
	if got := string(nmeaField(s, 0)); got != "$GPRMC" {
		t.Errorf("field 0 = %q", got)
	}
	if got := string(nmeaField(s, 2)); got != "A" {
		t.Errorf("field 2 = %q", got)
	}
	if got := nmeaField(s, 3); got == nil || len(got) != 0 {
		t.Errorf("field 3 should be empty, got %q", got)
	}
	if got := string(nmeaField(s, 4)); got != "x" {
		t.Errorf("field 4 = %q", got)
	}
	if got := nmeaField(s, 5); got != nil {
		t.Errorf("field 5 should be missing, got %q", got)
	}
}
