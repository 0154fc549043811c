// Package sandbox runs page scripts for the emulated application in goja
// runtimes, one runtime per browsing context.
//
// A runtime sees a small browser surface: window, location, window.open, a
// console and a read-only document backed by the page's parsed HTML. What
// else it sees depends on Config:
//
//   - NodeIntegration exposes require and process, as Electron does for
//     contexts with node integration enabled.
//   - AllowEval keeps eval and the Function constructor. Without it both throw
//     EvalError, the behaviour of a Content-Security-Policy without
//     unsafe-eval.
//
// Scripts passed to Call are function bodies, the shape WebDriver's execute
// command uses. The return value is passed through JSON.stringify inside the
// runtime so callers only ever receive JSON-compatible values.
//
// Example Usage:
//
//	dom, _ := sandbox.ParseDOM(page)
//	rt, _ := sandbox.New(sandbox.Config{Timeout: time.Second}, dom, host, logger)
//	_ = rt.Load(ctx)
//	v, err := rt.Call(ctx, "return document.title;", nil)
package sandbox
