// Package syncer implements the pull-sync orchestrator that reconciles the
// remote field-sales backend with the local embedded store.
//
// # Overview
//
// One sync cycle fetches every entity kind from the backend, in a fixed
// order, and persists each kind's records through its repository inside a
// single transaction:
//
//	Backend API
//	     ├── GET /api/v1/leads        → []*model.Lead
//	     ├── GET /api/v1/customers    → []*model.Customer
//	     └── GET /api/v1/quotations   → []*model.Quotation
//	                                        ↓
//	                                   Orchestrator
//	                                        ↓
//	                                   repositories → SQLite
//	                                   ledger       → sync_state
//
// # Usage
//
//	db, err := store.Open(".fieldsync/local.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.InitSchema(ctx); err != nil {
//	    return err
//	}
//
//	repos := []repo.Repository{
//	    repo.NewLeadRepo(db),
//	    repo.NewCustomerRepo(db),
//	    repo.NewQuotationRepo(db),
//	}
//	client := remote.NewClient(baseURL, remote.StaticToken(token), timeout, logger)
//	orch := syncer.New(repos, ledger.New(db), client, remote.DialProbe(baseURL, time.Second), logger)
//
//	result := orch.Sync(ctx, syncer.TriggerManual)
//	if !result.Success {
//	    log.Printf("sync failed: %s", result.Err)
//	}
//
// # Failure model
//
// Sync never returns an error; every outcome is a SyncResult.
//
//   - Offline: returns immediately with Err "OFFLINE"; nothing else happens.
//   - Fetch failure for one kind: that kind reports failed with count 0,
//     the cycle continues with the remaining kinds.
//   - Authentication failure: fatal, the cycle aborts before later kinds
//     are fetched.
//   - Persistence failure: fatal, Err carries a "persistence failed" prefix;
//     the failing kind's transaction is rolled back, kinds committed earlier
//     in the same cycle stay committed.
//   - Empty remote payload with existing local rows: treated as "no update",
//     local rows are kept and the existing count is reported.
//
// # Concurrency
//
// At most one cycle runs per orchestrator. Callers that invoke Sync while a
// cycle is in flight join it and receive the identical *SyncResult; the
// remote fetch runs at most once per kind per cycle. Cancellation is
// cooperative and honored only between kinds, never mid-transaction.
package syncer
