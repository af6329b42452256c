// Package gate decides which admin features the UI shows for the active
// role.
//
// The catalog is a list of {feature, required permission} pairs, built in
// or loaded from YAML:
//
//	version: v1
//	features:
//	  - name: export
//	    label: Export results
//	    permission: export_results
//
// Evaluate also reports which features are hidden only because the active
// role is narrower than the viewer's most privileged held role, so the UI
// can say how much is hidden. Nothing here is a security boundary.
package gate
