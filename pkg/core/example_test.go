package core_test

import (
	"context"
	"fmt"
	"os"

	"github.com/veil-pii/veil/pkg/core"
)

// ExampleAnonymize anonymizes every text file in a directory through the
// analyzer and anonymizer services.
func ExampleAnonymize() {
	r, err := core.NewPII(core.Services{
		AnalyzerURL:   "http://localhost:5002",
		AnonymizerURL: "http://localhost:5001",
	}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "policies: %v\n", err)
		return
	}
	cfg := core.Config{
		Root:      "./docs",
		Target:    core.TargetDirectory,
		Mode:      core.ModeText,
		Redactor:  r,
		Recursive: true,
	}

	rep, err := core.Anonymize(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "anonymize failed: %v\n", err)
		return
	}
	fmt.Printf("%d files anonymized, %d failed\n", rep.Succeeded, rep.Failed)
}

// ExampleApplySpans redacts spans found elsewhere without calling a service.
func ExampleApplySpans() {
	text, _, _ := core.ApplySpans("Mail jane@example.com", []core.Span{
		{Start: 5, End: 21, EntityType: "EMAIL_ADDRESS"},
	})
	fmt.Println(text)
	// Output: Mail [EMAIL]
}
