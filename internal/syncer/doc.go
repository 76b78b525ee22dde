// Package syncer mirrors the local school document to a remote store.
//
// # Overview
//
// Three pieces cooperate around one Session:
//
//   - Coordinator: runs once at startup. It fetches the remote document (or
//     waits for the first push from a subscription) and hydrates the state
//     container, or settles into local-only mode when no remote is
//     configured.
//   - Bridge: observes local changes in the container and turns them into
//     debounced, per-section remote writes.
//   - Session: the shared sync status (configured, loaded, status, phase,
//     last error) that both report into and the CLI renders.
//
// # Architecture
//
//	state.Container ──(Change, OriginLocal)──▶ Bridge ──Save──▶ remote.Store
//	       ▲                                                       │
//	       └──────── Hydrate (OriginRemote) ◀── Coordinator ◀──────┘
//	                                          (FetchAll / Subscribe)
//
// # Write guards
//
// A local change is written only when all of these hold:
//
//   - the coordinator has finished its load attempt (Session.IsLoaded)
//   - the store reports a usable endpoint (remote.Store.IsConfigured)
//   - the session role may write the section (Role.CanWrite)
//
// Changes failing a guard are dropped without an error. Changes that
// arrive from the remote (Hydrate) are never written back.
//
// # Debouncing
//
// Every accepted change marks its section dirty and restarts one shared
// timer. When the timer fires, each dirty section is written once with its
// current value, concurrently, under a per-batch timeout. Batches never
// overlap, so writes of one section leave in the order their windows
// closed.
//
// # Failed loads
//
// A load that fails (transport error, malformed response, empty remote)
// still marks the session loaded with status ERROR. Later local edits are
// written, so a flaky remote never strands them in memory.
//
// # Usage
//
//	session := syncer.NewSession()
//	coord := syncer.NewCoordinator(store, container, session, nil)
//	coord.Load(ctx)
//
//	bridge := syncer.NewBridge(store, container, session, syncer.DefaultBridgeConfig())
//	bridge.Arm()
//	defer bridge.Close()
//
//	_, _ = container.AddStudent(schema.Student{Name: "Ani", ClassName: "VII A"})
//	if err := bridge.Flush(); err != nil {
//	    log.Printf("sync failed: %v", err)
//	}
package syncer
