// Package publisher copies files and encodes image payloads into the public
// media location and announces them to the media index.
//
// Every operation returns a Result instead of an error. Failures of any kind,
// including panics, are converted into Result{Success: false} with a
// description, and can be classified with Classify.
//
// The index is only notified after the destination has been closed, so an
// indexer never observes a truncated asset.
package publisher
