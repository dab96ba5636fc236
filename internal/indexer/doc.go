// Package indexer maintains the media index and answers index notifications.
//
// Published files are announced to the Indexer in one of two ways:
//   - Scan: the caller blocks until the file has been indexed and receives
//     its content URI, or until its context ends
//   - Broadcast: the path is queued and the caller returns immediately
//
// Requests are served by a fixed pool of workers reading a bounded queue.
// Every Scan carries its own reply channel, so concurrent callers never see
// each other's results. A periodic sweep removes index entries whose files
// have disappeared and clears pending records abandoned by a crash.
package indexer
