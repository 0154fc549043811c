// Package harness defines the vocabulary shared by the isolation harness:
// contexts (a window or an embedded pane inside it), the Session contract the
// remote automation adapter implements, and the error taxonomy that separates
// security verdicts from infrastructure trouble.
//
// Layering, leaves first:
//
//	remote   (Session over WebDriver)
//	windows  (logical index addressing, wait-for-window-count)
//	probe    (capability-absence, host API, dynamic evaluation)
//	scenario (the three isolation scenarios and their reports)
//
// Only SecurityViolation represents a product defect. Every other error is
// either expected (ExecutionError from a blocked eval), collected (TimeoutError,
// SetupDefect) or fatal to the current scenario (LaunchError,
// IndexOutOfRangeError, NoSuchPaneError, transport failures).
package harness
