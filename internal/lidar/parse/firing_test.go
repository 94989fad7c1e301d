package parse

import (
	"testing"

	"github.com/banshee-data/camsync/internal/testutil"
)

func TestNewFiring_SizeValidation(t *testing.T) {
	good := testutil.VelodyneFiring(nil, 0, 0, 0)

	if _, err := NewFiring(Velo32E, good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewFiring(Pandar40, good); err == nil {
		t.Error("1206-byte packet accepted as Pandar firing")
	}
	if _, err := NewFiring(Velo64E, good[:1205]); err == nil {
		t.Error("short packet accepted")
	}
	if _, err := NewFiring(FamilyUnknown, good); err == nil {
		t.Error("unknown family accepted")
	}
}

func TestFiring_VelodyneFields(t *testing.T) {
	az := testutil.UniformAzimuths(35900, 20, 12)
	raw := testutil.VelodyneFiring(az, 3599999999, byte(StatusYear), 24)

	p, err := NewFiring(Velo64E, raw)
	testutil.AssertNoError(t, err)

	if p.Family() != Velo64E {
		t.Errorf("family = %v", p.Family())
	}
	if p.Blocks() != 12 {
		t.Fatalf("blocks = %d", p.Blocks())
	}
	for i := 0; i < p.Blocks(); i++ {
		if got := p.Azimuth(i); got != az[i] {
			t.Errorf("block %d azimuth = %d, want %d", i, got, az[i])
		}
	}
	if got := p.GPSTimestamp(); got != 3599999999 {
		t.Errorf("timestamp = %d", got)
	}
	typ, val := p.Status()
	if typ != StatusYear || val != 24 {
		t.Errorf("status = %v/%d", typ, val)
	}
	if len(p.Bytes()) != VelodyneFiringSize {
		t.Errorf("Bytes() length = %d", len(p.Bytes()))
	}
}

func TestFiring_PandarFields(t *testing.T) {
	az := testutil.UniformAzimuths(100, 20, 10)
	p, err := NewFiring(Pandar40, testutil.PandarFiring(az, 999999))
	testutil.AssertNoError(t, err)

	if p.Blocks() != 10 {
		t.Fatalf("blocks = %d", p.Blocks())
	}
	if p.Azimuth(9) != az[9] {
		t.Errorf("block 9 azimuth = %d, want %d", p.Azimuth(9), az[9])
	}
	if p.GPSTimestamp() != 999999 {
		t.Errorf("timestamp = %d", p.GPSTimestamp())
	}
	if typ, _ := p.Status(); typ != 0 {
		t.Errorf("Pandar packets carry no status pair, got %v", typ)
	}
}

func TestStatusType_String(t *testing.T) {
	cases := map[StatusType]string{
		StatusHour: "hour", StatusMinute: "minute", StatusSecond: "second",
		StatusDay: "day", StatusMonth: "month", StatusYear: "year",
		StatusGPS: "gps", StatusTemp: "temperature", StatusVersion: "version",
		StatusType('?'): "unknown",
	}
	for st, want := range cases {
		if st.String() != want {
			t.Errorf("%q.String() = %q, want %q", byte(st), st.String(), want)
		}
	}
}
