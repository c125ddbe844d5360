// Package checkpoint records which dates of a run are already done so that
// an interrupted month or year run can resume where it stopped.
//
// A checkpoint is keyed by a signature of the run's mode, content, period and
// filter rules; changing any of them starts a fresh checkpoint. Files live in
// <user config dir>/pixivrank/checkpoints and are replaced atomically.
package checkpoint
