// Package core holds the import and export logic for the PLC inventory,
// independent of HTTP and of the database driver.
//
// # Import pipeline
//
// [Service.Import] parses a CSV upload, validates headers and then every
// row, and either commits the whole file in one transaction or nothing:
//
//  1. Parse: CSV or XLSX, UTF-8 check, BOM skip, header normalisation ([ParseFile])
//  2. Validate: required headers, then per-field rules ([ValidateFile])
//  3. Size decision: files above the background threshold are handed to
//     the [JobQueue] and finished later by [Service.RunBackgroundImport]
//  4. Process: resolve site, cell and equipment (creating them when
//     CreateMissing is set), apply the duplicate strategy, write the PLC
//  5. Commit or roll back; record [ImportHistory]; notify the [AuditNotifier]
//
// Any row error rolls the transaction back and zeroes the created counts.
//
// # Collaborators
//
// The service depends only on the interfaces in this package: [Store] and
// [Tx] for persistence, [JobQueue] for background imports and
// [AuditNotifier] for audit events. internal/database and internal/queue
// implement them on PostgreSQL; coretest implements them in memory.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages by [MapError]. Each
// category has a support code:
//
//   - DB001-DB005: constraint and connection faults
//   - VAL001-VAL003: options and validation problems
//   - FILE001-FILE005: size, type and encoding of the upload
//   - UPL001-UPL003: concurrency limits, cancellation, timeouts
//   - IMP001-IMP003: history records and background jobs
package core
