// Package core provides the business logic of the reconciler.
//
// It sits between the transport layer and the building blocks: rule and
// mapping files ([specfile]), CSV loading ([dataset]), rule evaluation
// ([rules]), the guessers ([guess]) and run persistence ([runstore]). Web
// handlers, the CLI and tests all go through [Service].
//
// # Validation Runs
//
// [Service.Validate] executes one run:
//
//  1. Waits for a slot from the [RunLimiter] (UPLOAD_MAX_CONCURRENT)
//  2. Loads the rule file and, if named, the mapping
//  3. Reads the left and right CSVs concurrently
//  4. Evaluates every rule and counts issues per severity
//  5. Writes the run directory and records the run in the index
//
// Runs are bounded by UPLOAD_TIMEOUT. Cancelling the context abandons the
// run before anything is written.
//
// # Guessing
//
// [Service.GuessMapping] and [Service.GuessTransforms] sample up to
// GUESS_SAMPLE_LIMIT rows per column and return suggestions only; nothing
// is saved until the user calls [Service.SaveMapping].
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages using [MapError].
// Each category has a code for support reference:
//
//   - FILE001-FILE005: upload and CSV errors
//   - RULE001-RULE003: rule file and mapping errors
//   - RUN001-RUN004: run lookup, capacity, timeout and request errors
//
// # Retention
//
// [Service.StartRetentionScheduler] removes run directories, uploads and
// index rows older than RUN_RETENTION_DAYS.
package core
