// Package api handles incoming HTTP requests, routing and response
// formatting. It adapts the writing service to HTTP: control actions and
// progress reads for users, and single-step worker endpoints for client
// heartbeats and external schedulers.
package api
