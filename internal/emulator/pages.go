package emulator

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/GriffinCanCode/webview-isolation/internal/fixture"
)

func shellPage(doc fixture.Document) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><title>Teams</title></head><body>\n<nav id=\"teams\">\n")
	for _, team := range doc.Teams {
		fmt.Fprintf(&b, "  <a class=\"team\" data-team=\"%s\">%s</a>\n",
			html.EscapeString(team.Name), html.EscapeString(team.Name))
	}
	b.WriteString("</nav>\n<a id=\"settings\">Settings</a>\n</body></html>\n")
	return b.String()
}

const settingsPage = `<!DOCTYPE html>
<html><head><title>Settings</title></head><body>
<h1>Settings</h1>
<form id="settings-form"><textarea name="config"></textarea></form>
</body></html>
`

func hostPage(team fixture.Team, policy Policy) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>%s</title></head><body>
<webview id="team-%s" src="%s" partition="persist:%s" nodeintegration="%t"></webview>
</body></html>
`,
		html.EscapeString(team.Name),
		html.EscapeString(team.Name),
		html.EscapeString(team.URL),
		html.EscapeString(team.Name),
		policy.NodeIntegration,
	)
}
