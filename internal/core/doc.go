// Package core provides the business logic for the multi-file merge
// workflow.
//
// This package is the heart of the service, containing all domain logic
// independent of any UI or transport layer. It can be used by web handlers,
// CLI tools, or tests without modification.
//
// # Architecture
//
// The package is organized around a handful of concepts:
//
//   - Loading: [Load] turns one uploaded CSV or workbook file into a
//     normalized [table.Table] (lower-cased, trimmed column names).
//   - Cleaning: [Clean] strips rows whose "completion %" cell is missing.
//   - Merging: [Merge] left-joins a secondary table into a base table on
//     normalized keys, rejecting duplicate secondary keys.
//   - Sessions: a [Session] accumulates uploaded files and the evolving
//     merged table; [Service] is the entry point for all operations and
//     serializes each session's chain.
//   - Export: [ExportCSV] and [ExportXLSX] serialize the final table.
//
// # The Merge Chain
//
// A workflow folds N uploaded files into one table through N-1 left-join
// steps. The first step joins two uploaded files; every later step joins
// the current merged table with one remaining file:
//
//	state, msgs, err := svc.MergeStep(ctx, id, core.MergeRequest{
//	    Primary: "a.csv", Secondary: "b.xlsx",
//	    PrimaryKey: "id", SecondaryKey: "ref",
//	})
//
// Each file enters the chain at most once. A duplicate-key failure halts
// the whole workflow until the user resets it; every other failure is
// recoverable and leaves the chain's state untouched.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE006: File errors (empty, no data, parse, size)
//   - MRG001-MRG006: Merge chain errors (duplicates, halt, bookkeeping)
//   - SES001-SES002: Session errors (not found, capacity)
//   - COL001-COL002: Column selection errors
//   - IMP001: Import concurrency errors
package core
