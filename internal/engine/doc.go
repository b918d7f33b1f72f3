// Package engine orchestrates the alert lifecycle.
//
// Commands (Create, SetData, Delete, Preview) come from the boundary layer;
// timer fires and notification clicks/closes come in as typed events through
// Dispatch. Every transition that depends on a record's current state runs
// inside one storage.Store.Update call, so a fire racing a delete can never
// leave the record inconsistent.
//
// Per record:
//
//	created -> armed -> triggered -> shown -> handled
//	any --Delete, no live notification--> removed
//	any --Delete, live notification--> pending delete --Closed--> removed
//	armed/triggered/shown --SetData--> armed
package engine
