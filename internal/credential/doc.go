// Package credential holds the academic credential domain: the upload column
// contract, the enumerated catalog, row validation, and batch-level duplicate
// detection.
//
// Nothing in this package touches the filesystem or a database. The ingest
// package drives it, and the store package persists the [Record] values it
// produces.
//
// # Column Contract
//
// Uploaded sheets are matched by column name, not position. Header cells are
// compared case-insensitively with spaces, underscores and hyphens ignored, and
// the historical spellings of a column collapse onto one canonical name:
//
//	certificateID  <- identifier, id
//	cgpa           <- score, gpa
//	gstatus        <- status
//	startDate      <- periodStart
//	endDate        <- periodEnd
//	photo          <- displayAsset
//
// # Validation
//
// Validation is two-level:
//
//  1. [MissingFields] is a batch-level structural check on the header and the
//     first data row. Any hit rejects the whole batch with one message.
//  2. [Validator.ValidateRows] checks every row and never stops early, so a
//     caller sees every failing row in a single response.
//
// Row numbers in [RowError] are spreadsheet line numbers: the first data row
// under a header on line 1 is reported as "Row 2".
package credential
