// Package engine defines the narrow capability surface docgate needs from the
// external document engine.
//
// The orchestrator only ever talks to these interfaces: a Loader that opens,
// refreshes, exports, and closes documents, a FilterCatalog that enumerates
// import/export filters, and a TypeDetector that maps URLs to file-type
// tokens. A Session bundles all three behind one live connection. Concrete
// integrations (the bridge client, the enginetest fake) implement Session;
// nothing outside this package depends on engine-specific types.
package engine
