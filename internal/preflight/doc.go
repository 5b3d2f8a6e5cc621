// Package preflight provides readiness checks for the engine binary, the
// filesystem paths, and the listener addresses docgate depends on.
//
// These checks run in two contexts:
//   - The serve command calls RunAll before launching the engine. Any failed
//     check aborts startup, since the gateway cannot serve without it.
//   - The CLI "docgate status" command uses ProbeGateway and
//     CheckSystemDeps to explain why a gateway is not answering.
package preflight
