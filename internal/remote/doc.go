// Package remote implements harness.Launcher and harness.Session on top of a
// WebDriver server, normally chromedriver driving the Electron application.
//
// Start writes the fixture configuration where the application reads it,
// waits for the driver, creates the session (which launches the application)
// and then waits for the main window plus one window per team. Any failure
// along the way is a *harness.LaunchError naming the phase.
package remote
