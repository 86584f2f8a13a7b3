// Package unenroll removes user-course enrollments listed in a CSV batch.
//
// This package holds all decision logic of the tool and is independent of
// how the input was obtained or where users and enrollments are persisted.
// Stores plug in through [UserDirectory] and [EnrollmentStore].
//
// # Pipeline
//
// One call to [Pipeline.Run] processes one batch:
//
//  1. The CSV source is parsed into rows (package records).
//  2. [NewResolver] performs a single bulk user lookup for every username and
//     email in the batch, and parses each distinct course identifier once.
//  3. [LoadEnrollmentIndex] fetches, in one query, the active enrollments of
//     all resolved users in all valid courses.
//  4. For each row in input order, the [Reconciler] decides whether the row is
//     eligible, and the [Executor] unenrolls eligible rows with refunds
//     suppressed.
//  5. The [Reporter] streams every outcome and logs the final summary.
//
// # Outcomes
//
// Every row yields exactly one [RowOutcome]:
//
//   - unenrolled: the enrollment was deactivated
//   - skipped_invalid_course: the course identifier did not parse
//   - skipped_unknown_user: neither username nor email matched a single user
//   - skipped_no_enrollment: no active enrollment for the pair
//   - failed_mutation: the store rejected the unenroll; the batch continues
//
// Only an unreadable source ([ErrInputUnavailable]) or a failed bulk lookup
// ([ErrLookupFailed]) ends a run early.
package unenroll
