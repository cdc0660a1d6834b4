// Package document holds the JSON model-configuration layer for water-resource
// network models.
//
// A model document describes:
//
//   - [Node]: network elements (input, output, link, storage, catchment)
//   - [Edge]: directed connections between nodes, written as ["from", "to"]
//   - [Parameter]: named values that node attributes may reference
//   - [Recorder]: named result series collected while a model runs
//   - [Table]: CSV files, resolved relative to the document's base path
//   - [Timestepper]: the simulated window
//
// The package only parses, validates and edits documents. Running a document is
// the job of the engine and runner packages.
//
// # Example
//
//	doc, base, err := document.LoadFile("models/simple.json")
//	if err != nil {
//		return err
//	}
//	if err := doc.Validate(); err != nil {
//		return err
//	}
package document
