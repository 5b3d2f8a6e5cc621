// Package filters discovers import and export filters from the engine catalog
// and resolves user-supplied filter names to canonical ones.
//
// Descriptors are produced lazily from a fresh catalog cursor on every call and
// are never cached; callers build a new Registry per conversion.
package filters
