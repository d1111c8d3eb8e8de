// Package rotation provides type-safe Go definitions, the Redis schema and the Frame Store for
// rota's seat rotation state.
//
// # Overview
//
// A frame (State) holds the seat assignment map, the break queue, advisory conflicts, per-seat
// update timestamps and the tick and revision counters for one logical key. Keys combine a date
// identifier with an optional sandbox instance so isolated test sessions never touch production
// state.
//
// # Concurrency
//
// Two write disciplines exist and they are deliberately different:
//
//   - Single-seat and queue edits use a revision guard (PutOptions.ExpectedRev). A stale writer
//     gets ErrOptimisticConflict and must re-read and retry.
//   - Full-frame writes (rotate, populate) are last-writer-wins. Two concurrent full-frame
//     writers may clobber each other; the revision still increments so guarded writers notice.
//
// Full frames are additionally appended as per-position rows keyed by a time-of-day timestamp.
// Rows are never deleted, and the current board can be rebuilt from them with LatestBoard.
//
// # Usage Example
//
//	client, err := rotation.NewClient(&redis.Options{Addr: "localhost:6379"}, 2*time.Second)
//	if err != nil {
//		log.Fatal(err)
//	}
//	key := rotation.CanonicalKey("2025-07-04")
//
//	state, err := client.Get(ctx, key) // never not-found
//	state.Assignments["1.1"] = "g-104"
//	stored, err := client.Put(ctx, key, state, rotation.PutOptions{ExpectedRev: rotation.Rev(state.Rev)})
//	if rotation.IsOptimisticConflict(err) {
//		// re-read and retry
//	}
//
// # Redis Schema
//
// State:       rota:{date}[:sandbox:{instance}]:state        (hash)
// Frame index: rota:{date}[:sandbox:{instance}]:frames       (zset, lexicographic)
// Frame rows:  rota:{date}[:sandbox:{instance}]:frame_rows   (hash)
package rotation
