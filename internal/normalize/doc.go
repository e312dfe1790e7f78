// Package normalize clamps inputs before a transform sees them.
//
// Visual media outside the configured resolution range is rescaled, and
// videos or animations are capped in frame rate and trimmed to a maximum
// frame count. Adjustments are reported through a Notifier so the caller
// can surface them to the user.
package normalize
