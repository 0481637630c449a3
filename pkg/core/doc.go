// Package core provides a small, stable facade over veil's internal engine
// for external integrations. It re-exports a narrow API surface so other
// tools can depend on a stable import path without importing internal
// packages.
//
// Example:
//
//	r, err := core.NewPII(core.Services{AnalyzerURL: "http://localhost:5002"}, nil)
//	if err != nil { /* handle */ }
//	cfg := core.Config{
//		Root:     "./docs",
//		Target:   core.TargetDirectory,
//		Redactor: r,
//	}
//	rep, err := core.Anonymize(ctx, cfg)
//	if err != nil { /* handle */ }
//	_ = core.MarshalReport(os.Stdout, rep)
package core
