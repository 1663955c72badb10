package ciphersuite

import (
	"reflect"
	"testing"

	"github.com/nuodb/go-nuodb/internal/crypto"
)

func TestNewDefaultOrder(t *testing.T) {
	r := New()
	got := r.Preference()
	want := []crypto.Name{crypto.AES256CTR, crypto.RC4}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDisablePreservesOrderOnReEnable(t *testing.T) {
	r := New(crypto.AES256CTR, crypto.RC4)

	r.Disable(crypto.AES256CTR)
	got := r.Preference()
	want := []crypto.Name{crypto.RC4}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("after Disable: got %v want %v", got, want)
	}

	r.Enable(crypto.AES256CTR)
	got = r.Preference()
	want = []crypto.Name{crypto.AES256CTR, crypto.RC4}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("after re-Enable: got %v want %v", got, want)
	}
}

func TestEnableUnknownCipherAppendsAtLowestPriority(t *testing.T) {
	r := New(crypto.RC4)
	r.Enable(crypto.AES256CTR)
	got := r.Preference()
	want := []crypto.Name{crypto.RC4, crypto.AES256CTR}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestReload(t *testing.T) {
	r := New(crypto.AES256CTR, crypto.RC4)
	r.Disable(crypto.RC4)

	if err := r.Reload([]crypto.Name{crypto.RC4}); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	got := r.Preference()
	want := []crypto.Name{crypto.RC4}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestReloadRejectsEmptyOrder(t *testing.T) {
	r := New()
	if err := r.Reload(nil); err == nil {
		t.Fatal("expected an error reloading with no ciphers")
	}
}

func TestPreferenceIsIndependentPerCall(t *testing.T) {
	r := New(crypto.AES256CTR, crypto.RC4)
	got := r.Preference()
	got[0] = crypto.RC4

	again := r.Preference()
	if again[0] != crypto.AES256CTR {
		t.Fatalf("mutating one Preference result affected another: %v", again)
	}
}
