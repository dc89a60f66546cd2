package money

import (
	"encoding/json"
	"testing"
)

func TestTotalHasNoFloatDrift(t *testing.T) {
	// 0.1 + 0.2 style inputs must sum exactly in decimal space.
	total := Zero
	for i := 0; i < 10; i++ {
		total = total.Add(FromFloat(0.10))
	}
	if total.String() != "1.00" {
		t.Fatalf("expected 1.00, got %s", total)
	}
}

func TestMulQty(t *testing.T) {
	price := FromFloat(10.00)
	if got := price.MulQty(3).String(); got != "30.00" {
		t.Fatalf("expected 30.00, got %s", got)
	}
}

func TestEqualWithinCentTolerance(t *testing.T) {
	a := FromFloat(25.00)
	b := FromFloat(25.009)
	if !a.Equal(b) {
		t.Fatalf("expected %s and %s to be equal within tolerance", a, b)
	}

	c := FromFloat(25.02)
	if a.Equal(c) {
		t.Fatalf("expected %s and %s to differ beyond tolerance", a, c)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	payload, err := json.Marshal(FromFloat(149.90))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(payload) != `"149.90"` {
		t.Fatalf("unexpected json form: %s", payload)
	}

	var back Money
	if err := json.Unmarshal(payload, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.String() != "149.90" {
		t.Fatalf("expected 149.90 after round trip, got %s", back)
	}
}

func TestUnmarshalAcceptsBareNumbers(t *testing.T) {
	var m Money
	if err := json.Unmarshal([]byte(`12.5`), &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if m.String() != "12.50" {
		t.Fatalf("expected 12.50, got %s", m)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("not-a-number"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFromCentsMatchesParse(t *testing.T) {
	fromCents := FromCents(1850)
	parsed, err := Parse("18.50")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if fromCents.Cmp(parsed) != 0 {
		t.Fatalf("expected %s to equal %s exactly", fromCents, parsed)
	}
}

func TestCmpIsExact(t *testing.T) {
	// Cmp ignores the cent tolerance Equal applies.
	a := FromFloat(25.00)
	b := FromFloat(25.009)
	if !a.Equal(b) {
		t.Fatalf("expected tolerance equality between %s and %s", a, b)
	}
	if a.Cmp(b) != -1 {
		t.Fatalf("expected exact comparison to order %s before %s", a, b)
	}
	if b.Cmp(a) != 1 || a.Cmp(a) != 0 {
		t.Fatalf("unexpected ordering from Cmp")
	}
}

func TestFloat64ForDisplay(t *testing.T) {
	if got := FromCents(1850).Float64(); got != 18.5 {
		t.Fatalf("expected 18.5, got %v", got)
	}
}

func TestSum(t *testing.T) {
	total := Sum(FromFloat(15), FromFloat(10.01))
	if total.String() != "25.01" {
		t.Fatalf("expected 25.01, got %s", total)
	}
	if !Sum().IsZero() {
		t.Fatalf("expected empty sum to be zero")
	}
}

func TestSubAndSign(t *testing.T) {
	change := FromFloat(30).Sub(FromFloat(25))
	if change.String() != "5.00" {
		t.Fatalf("expected 5.00 change, got %s", change)
	}
	if FromFloat(20).Sub(FromFloat(25)).IsNegative() == false {
		t.Fatalf("expected negative result")
	}
}
