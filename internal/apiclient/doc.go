// Package apiclient provides shared HTTP plumbing for the registry and
// twin API clients.
//
// It covers bearer-token authentication, JSON request/response handling
// and the error taxonomy the reconciler depends on: a *apiclient.Error
// carries the HTTP status code of a failed call, and the IsNotFound and
// IsConflict helpers classify it. NotFound means the target is absent
// (success for delete-style operations), Conflict means a concurrent
// external mutation (always retried, never surfaced as an error by the
// reconciler). Everything else is fatal for the current attempt.
package apiclient
