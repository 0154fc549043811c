// Package webdriver is a client for the W3C WebDriver wire protocol as spoken
// by chromedriver when it drives an Electron application.
//
// Only the commands the isolation harness needs are implemented: session
// lifecycle, window handles, window and frame switching, synchronous script
// execution, element lookup, attribute reads and navigation.
//
// Built on go-resty/resty with a pooled transport from
// hashicorp/go-retryablehttp and a golang.org/x/time/rate limiter. Each
// command carries its own timeout. Only idempotent commands are retried, and
// only on transport failures: re-sending an execute could run a script twice.
// Session commands also pass through a circuit breaker that opens after
// consecutive transport failures; /status polls do not.
//
// Example Usage:
//
//	client := webdriver.New(webdriver.DefaultConfig("http://127.0.0.1:9515"), logger)
//	sess, err := client.NewSession(ctx, webdriver.ElectronCapabilities(binary, args))
//	handles, err := sess.WindowHandles(ctx)
package webdriver
