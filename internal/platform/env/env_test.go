package env

import (
	"testing"
	"time"
)

func TestStringDefault(t *testing.T) {
	if got := String("NIMBUS_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("unexpected default %q", got)
	}
	t.Setenv("NIMBUS_TEST_STRING", "value")
	if got := String("NIMBUS_TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestRequired(t *testing.T) {
	if _, err := Required("NIMBUS_TEST_UNSET"); err == nil {
		t.Fatalf("expected error for unset variable")
	}
	t.Setenv("NIMBUS_TEST_REQUIRED", "  ")
	if _, err := Required("NIMBUS_TEST_REQUIRED"); err == nil {
		t.Fatalf("expected error for blank variable")
	}
	t.Setenv("NIMBUS_TEST_REQUIRED", " value ")
	v, err := Required("NIMBUS_TEST_REQUIRED")
	if err != nil || v != "value" {
		t.Fatalf("unexpected result %q %v", v, err)
	}
}

func TestDuration(t *testing.T) {
	d, err := Duration("NIMBUS_TEST_UNSET", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("unexpected default %v %v", d, err)
	}
	t.Setenv("NIMBUS_TEST_DURATION", "250ms")
	d, err = Duration("NIMBUS_TEST_DURATION", 0)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("unexpected duration %v %v", d, err)
	}
	t.Setenv("NIMBUS_TEST_DURATION", "soon")
	if _, err := Duration("NIMBUS_TEST_DURATION", 0); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestInt(t *testing.T) {
	t.Setenv("NIMBUS_TEST_INT", "42")
	i, err := Int("NIMBUS_TEST_INT", 0)
	if err != nil || i != 42 {
		t.Fatalf("unexpected int %d %v", i, err)
	}
	t.Setenv("NIMBUS_TEST_INT", "many")
	if _, err := Int("NIMBUS_TEST_INT", 0); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestBool(t *testing.T) {
	b, err := Bool("NIMBUS_TEST_UNSET", true)
	if err != nil || !b {
		t.Fatalf("unexpected default %v %v", b, err)
	}
	t.Setenv("NIMBUS_TEST_BOOL", "true")
	b, err = Bool("NIMBUS_TEST_BOOL", false)
	if err != nil || !b {
		t.Fatalf("unexpected bool %v %v", b, err)
	}
}
