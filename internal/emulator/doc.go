// Package emulator is an in-process stand-in for the Electron application
// under test. It speaks enough of the WebDriver protocol for the harness to
// drive it exactly as it drives chromedriver.
//
// The emulated application reads the fixture configuration when a session is
// created and opens:
//
//   - window 0, the administrative shell, which can navigate to the settings
//     view;
//   - one window per team, each hosting a <webview> element whose single pane
//     (frame 0) loads the team's URL;
//   - a popup window, some time later, for every window.open call made by
//     content.
//
// Every browsing context runs its scripts in its own sandbox runtime. A Policy
// decides what those runtimes may do; the secure policy is what a correctly
// hardened application does, and each field can be flipped to produce the
// misconfigurations the harness exists to catch.
package emulator
