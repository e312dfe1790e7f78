// Package tempfile tracks the intermediate artifacts produced while handling
// one request and guarantees they are deleted together.
//
// A Session is carried through the request's context.Context. Every
// component that needs a fresh output path calls Reserve(ctx, ext), which
// registers the path with whichever session the context carries and fails
// with ErrNoSession when there is none, rather than leaking an untracked
// file. Scope opens a session around a function and closes it on every exit
// path (return, error, panic, cancellation).
//
// Work that runs with its own child session (see package parallel) hands its
// files to the parent with Session.Merge. The final artifact of a request is
// detached with Session.Release so the caller can upload it before removing
// it.
//
// Each path is owned by exactly one live session at a time and is deleted at
// most once.
package tempfile
