// Package dashboard implements the read and ingest paths of the shipment
// analytics dashboard.
//
// Ingest is two-phase: records are normalized and stored first, then a
// computation job is scheduled separately. A scheduling failure is logged
// and never fails the import; the first report read that misses the cache
// schedules the job again.
//
// Read paths only consult the cache. They never run an aggregation inline.
package dashboard
