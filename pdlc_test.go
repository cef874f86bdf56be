package pdlc_test

import (
	"strings"
	"testing"

	"github.com/pdlc-project/pdlc/errors"

	"github.com/pdlc-project/pdlc"
	_ "github.com/pdlc-project/pdlc/internal/codegen/golang"
)

const src = `little_endian_packets
enum Kind : 8 {
  A = 1,
  B = 2,
}
struct Header {
  kind: Kind,
  len: 16,
}
`

func TestCompileNoTargetRunsResolveOnly(t *testing.T) {
	result, diags := pdlc.Compile(src, pdlc.Options{FileName: "header.pdl"})
	if diags.HasErrors() {
		t.Fatalf("diags: %v", diags.Err())
	}
	if result.Output != "" {
		t.Errorf("Output = %q, want empty when Target unset", result.Output)
	}
	if _, ok := result.File.Structs["Header"]; !ok {
		t.Error("resolved model missing Header")
	}
}

func TestCompileWithTarget(t *testing.T) {
	result, diags := pdlc.Compile(src, pdlc.Options{FileName: "header.pdl", Target: pdlc.TargetGo})
	if diags.HasErrors() {
		t.Fatalf("diags: %v", diags.Err())
	}
	if !strings.Contains(result.Output, "type Header struct") {
		t.Errorf("output missing struct decl:\n%s", result.Output)
	}
}

func TestCompileParseErrorAbortsWithOneDiagnostic(t *testing.T) {
	_, diags := pdlc.Compile("not a pdl file {{{", pdlc.Options{})
	if !diags.HasErrors() {
		t.Fatal("want parse error, got none")
	}
	if len(diags.Errors()) != 1 {
		t.Errorf("len(Errors()) = %d, want 1", len(diags.Errors()))
	}
	if diags.Errors()[0].Phase != errors.PhaseParse {
		t.Errorf("Phase = %v, want PhaseParse", diags.Errors()[0].Phase)
	}
}

func TestCompileResolveErrorsAreAllCaptured(t *testing.T) {
	// Two independent unresolved-name violations in the same file: the
	// accumulated Diagnostics must still come back populated even though
	// resolve.Resolve()'s combined error loses per-error structure once
	// there's more than one.
	bad := `little_endian_packets
struct A {
  x: NoSuchEnum,
}
struct B {
  y: AlsoMissing,
}
`
	_, diags := pdlc.Compile(bad, pdlc.Options{})
	if !diags.HasErrors() {
		t.Fatal("want resolve errors, got none")
	}
	if len(diags.Errors()) == 0 {
		t.Fatal("diags.Errors() is empty despite HasErrors() == true")
	}
	if diags.Errors()[0].Phase != errors.PhaseResolve {
		t.Errorf("Phase = %v, want PhaseResolve", diags.Errors()[0].Phase)
	}
}

func TestCompileVersionPragmaCompatible(t *testing.T) {
	compatible := `pdl_version = "0.1.0"
` + src
	_, diags := pdlc.Compile(compatible, pdlc.Options{})
	if diags.HasErrors() {
		t.Fatalf("diags: %v", diags.Err())
	}
}

func TestCompileVersionPragmaNewerMinorRejected(t *testing.T) {
	newer := `pdl_version = "0.99.0"
` + src
	_, diags := pdlc.Compile(newer, pdlc.Options{})
	if !diags.HasErrors() {
		t.Fatal("want a version compatibility error, got none")
	}
	if diags.Errors()[0].Kind != errors.KindIncompatibleVersion {
		t.Errorf("Kind = %v, want KindIncompatibleVersion", diags.Errors()[0].Kind)
	}
}

func TestCompileUnsupportedTarget(t *testing.T) {
	_, diags := pdlc.Compile(src, pdlc.Options{Target: pdlc.TargetTS})
	if !diags.HasErrors() {
		t.Fatal("want unsupported target error, got none")
	}
	if !strings.Contains(diags.Err().Error(), string(errors.KindUnsupportedTarget)) {
		t.Errorf("error = %v, want it to mention %q", diags.Err(), errors.KindUnsupportedTarget)
	}
}
