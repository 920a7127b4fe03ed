// Package domain holds the writing entities (projects, chapters with their
// scene outlines, writing jobs and credit ledgers) together with the closed
// status types and transition tables that govern them.
package domain
