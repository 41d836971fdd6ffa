// Package visit defines the identifiers, records and error classes shared by
// the PFS visit allocator.
//
// A visit is one instrument exposure sequence. Each visit is identified by a
// [ID] issued exactly once within an [Epoch], and each issuance is described by
// a [Record] written to a record store on a best-effort basis.
package visit
