// Package ledger records which items have been delivered to which
// destinations so repeated runs only fetch and publish what is still owed.
//
// A Ledger keeps an in-memory index keyed by media.ItemKey.ID, loaded from a
// Store on first use. Record marks deliveries in memory; Flush merges them
// into the persisted table under the store's write lock and rewrites it in
// one step. Two stores exist: CSVStore, a tabular file with one boolean
// column per destination, and SQLiteStore.
package ledger
