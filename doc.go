// Package pdlc compiles PDL (Packet Description Language) source into
// generated parse/serialize codecs for a target language.
//
// PDL describes binary wire formats declaratively: enums, structs and
// packets built from bit-packed scalar fields, arrays, optional fields
// and opaque payload regions dispatched to child packets by a
// discriminant field. pdlc turns a `.pdl` file into Go, Rust, C++ or
// Python source that parses and serializes that format.
//
// # Architecture Overview
//
// The compiler is a straight-line pipeline, each stage its own package:
//
//	pdlc/                     Root package: Compile entry point
//	├── internal/token/       Lexer
//	├── internal/ast/         Untyped syntax tree
//	├── internal/parser/      Recursive-descent parser
//	├── internal/model/       Resolved, typed declarations
//	├── internal/resolve/     Symbol table, group splicing, inheritance checks
//	├── internal/layout/      Chunk packing, array/payload/optional-bit layout
//	├── internal/cir/         Canonical parse/serialize operation tree
//	├── internal/codegen/     Shared CIR walker + per-language profiles
//	│   ├── golang/           Go reference backend
//	│   ├── rust/             Rust backend
//	│   ├── cxx/              C++ backend
//	│   └── python/           Python backend
//	├── internal/version/     pdl_version pragma compatibility check
//	└── errors/               Structured, phase/kind-tagged diagnostics
//
// # Quick Start
//
//	result, diags := pdlc.Compile(src, pdlc.Options{
//		FileName: "example.pdl",
//		Target:   pdlc.TargetGo,
//	})
//	if diags.HasErrors() {
//		log.Fatal(diags.Err())
//	}
//	fmt.Println(result.Output)
//
// # Diagnostics
//
// Resolve runs to completion where safe, so a single Compile call can
// report every resolve violation in a file at once instead of stopping at
// the first; more than one violation arrives as one combined diagnostic.
// Parsing, layout analysis and codegen stop at the first error.
package pdlc
