package fixture

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// DocumentVersion is the configuration schema version the application reads.
const DocumentVersion = 1

// Team is one named remote endpoint the application opens a window for.
type Team struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Document is the configuration written before each scenario run:
// {"version":1,"teams":[{"name":...,"url":...}]}.
type Document struct {
	Version int    `json:"version"`
	Teams   []Team `json:"teams"`
}

// NewDocument builds a version 1 document with one team per name, all
// pointing at url.
func NewDocument(url string, names ...string) Document {
	doc := Document{Version: DocumentVersion, Teams: make([]Team, 0, len(names))}
	for _, name := range names {
		doc.Teams = append(doc.Teams, Team{Name: name, URL: url})
	}
	return doc
}

// Validate checks the document is something the application will accept.
func (d Document) Validate() error {
	if d.Version != DocumentVersion {
		return fmt.Errorf("unsupported config version %d", d.Version)
	}
	if len(d.Teams) == 0 {
		return fmt.Errorf("config has no teams")
	}
	for i, team := range d.Teams {
		if team.Name == "" {
			return fmt.Errorf("team %d has no name", i)
		}
		if team.URL == "" {
			return fmt.Errorf("team %q has no url", team.Name)
		}
	}
	return nil
}

// Write stores the document at path, creating parent directories. The file
// is replaced atomically so a starting application never reads a partial
// document.
func (d Document) Write(path string) error {
	if err := d.Validate(); err != nil {
		return err
	}

	data, err := sonic.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install config: %w", err)
	}
	return nil
}

// Read loads and validates a document from path.
func Read(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read config: %w", err)
	}

	var doc Document
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode config: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}
