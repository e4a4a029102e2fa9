// Package delivery publishes enriched records to their destinations.
//
// A Sink is one destination. Fanout runs every sink concurrently, each with
// its own bounded worker pool, and only posts the records a destination is
// still owed. AssetCache downloads poster images once per run no matter how
// many sinks ask for them. The WordPress sink lives in the wordpress
// subpackage.
package delivery
