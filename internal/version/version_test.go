package version

import (
	"testing"

	"github.com/coreos/go-semver/semver"
)

func TestCheckSameMajorOlderMinorOK(t *testing.T) {
	compiler := semver.New("1.4.0")
	p, err := ParsePragma("1.2.0")
	if err != nil {
		t.Fatalf("ParsePragma() error: %v", err)
	}
	if err := Check(p, compiler); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
}

func TestCheckNewerMinorRejected(t *testing.T) {
	compiler := semver.New("1.2.0")
	p, err := ParsePragma("1.4.0")
	if err != nil {
		t.Fatalf("ParsePragma() error: %v", err)
	}
	if err := Check(p, compiler); err == nil {
		t.Fatal("Check() with a newer minor: want error, got nil")
	}
}

func TestCheckDifferentMajorRejected(t *testing.T) {
	compiler := semver.New("1.0.0")
	p, err := ParsePragma("2.0.0")
	if err != nil {
		t.Fatalf("ParsePragma() error: %v", err)
	}
	if err := Check(p, compiler); err == nil {
		t.Fatal("Check() with a different major: want error, got nil")
	}
}

func TestCheckNilPragmaOK(t *testing.T) {
	if err := Check(nil, semver.New("1.0.0")); err != nil {
		t.Fatalf("Check(nil, ...) error: %v", err)
	}
}

func TestParsePragmaInvalid(t *testing.T) {
	if _, err := ParsePragma("not-a-version"); err == nil {
		t.Fatal("ParsePragma(\"not-a-version\"): want error, got nil")
	}
}
