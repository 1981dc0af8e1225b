// Package preflight provides readiness checks for the external services
// and filesystem paths a generation run depends on.
//
// The "constellation doctor" command runs RunAll and prints one row per
// check. The runner calls RunAll with RequireServices off before a
// generation run so a missing output directory fails fast instead of
// after every artifact has been paid for.
package preflight
