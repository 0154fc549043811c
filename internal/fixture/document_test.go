package fixture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocument(t *testing.T) {
	doc := NewDocument("http://localhost:8181", "example_1", "example_2")

	assert.Equal(t, 1, doc.Version)
	require.Len(t, doc.Teams, 2)
	assert.Equal(t, Team{Name: "example_1", URL: "http://localhost:8181"}, doc.Teams[0])
	assert.NoError(t, doc.Validate())
}

func TestDocumentValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{name: "version", doc: Document{Version: 2, Teams: []Team{{Name: "a", URL: "u"}}}, want: "version 2"},
		{name: "no teams", doc: Document{Version: 1}, want: "no teams"},
		{name: "unnamed", doc: Document{Version: 1, Teams: []Team{{URL: "u"}}}, want: "no name"},
		{name: "no url", doc: Document{Version: 1, Teams: []Team{{Name: "a"}}}, want: "no url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	doc := NewDocument("http://127.0.0.1:8181", "example_1", "example_2")

	require.NoError(t, doc.Write(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"teams":[
		{"name":"example_1","url":"http://127.0.0.1:8181"},
		{"name":"example_2","url":"http://127.0.0.1:8181"}]}`, string(raw))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	assert.Error(t, Document{Version: 1}.Write(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Read(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = Read(bad)
	assert.ErrorContains(t, err, "decode config")
}
