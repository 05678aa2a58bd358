package projutil

import (
	"math"
	"testing"
)

func TestWebMercatorRoundTrip(t *testing.T) {
	fwd, err := Lookup(4326, 3857)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inv, err := Lookup(3857, 4326)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lon, lat, h := 139.767, 35.681, 10.0
	x, y, z := fwd(lon, lat, h)
	lon2, lat2, h2 := inv(x, y, z)

	if math.Abs(lon-lon2) > 1e-9 || math.Abs(lat-lat2) > 1e-9 || math.Abs(h-h2) > 1e-9 {
		t.Fatalf("round trip mismatch: (%v,%v,%v) -> (%v,%v,%v)", lon, lat, h, lon2, lat2, h2)
	}
}

func TestJGD2011RoundTrip(t *testing.T) {
	fwd, err := Lookup(6697, 4326)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inv, err := Lookup(4326, 6697)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lon, lat, h := 139.767, 35.681, 10.0
	x, y, z := fwd(lon, lat, h)
	lon2, lat2, h2 := inv(x, y, z)

	if math.Abs(lon-lon2) > 1e-9 || math.Abs(lat-lat2) > 1e-9 || math.Abs(h-h2) > 1e-9 {
		t.Fatalf("round trip mismatch: (%v,%v,%v) -> (%v,%v,%v)", lon, lat, h, lon2, lat2, h2)
	}
}

func TestUnsupportedPairReturnsError(t *testing.T) {
	if _, err := Lookup(2451, 9999); err == nil {
		t.Fatalf("expected an error for an unregistered CRS pair")
	}
}
