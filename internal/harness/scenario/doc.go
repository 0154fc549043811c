// Package scenario runs the three isolation scenarios against freshly
// launched application sessions and reports their verdicts.
//
// Every scenario gets its own session. The Runner drives it through
//
//	NotStarted → SessionStarting → Ready → Probing → Passed | Failed → TornDown
//
// and SessionStarting → Failed → TornDown when the application never becomes
// ready. Teardown runs exactly once for every session that was started,
// whatever the scenario did.
//
// Verdict failures (security violations, setup defects, timed-out waits) are
// collected and the scenario carries on. Infrastructure errors abort the
// scenario; its report carries the error.
package scenario
