// Package writing advances a project's writing run one job at a time.
//
// The Driver claims the next due job under a lease, hands it to the outline
// or scene worker, and commits the result together with the job's removal,
// the credit debit and any project status change in one transaction.
// Failures never escape a worker: transient ones go through the retry
// Policy, content failures mark the chapter or scene failed, and a missing
// credit balance blocks the run until the user resumes it.
package writing
