// Package engine is the batch orchestrator for veil. It selects input files,
// runs each one through a pipeline.Redactor and writes the result next to the
// input as name_anonymized.ext. One failing file never stops the batch.
// External consumers should use the stable facade in pkg/core.
package engine
