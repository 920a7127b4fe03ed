// Package service contains the application-specific use cases. It
// orchestrates the writing state machine, the job queue and the credit
// ledger (through the interfaces in internal/store) to fulfil the actions a
// user can take on a writing run.
//
// Every control action runs in one transaction that holds the project row
// lock, checks that the caller owns the project, applies the transition and
// returns the progress read model. A progress event is published after the
// transaction commits.
//
// The service layer depends on domain entities and store interfaces, never on
// a specific infrastructure implementation.
package service
