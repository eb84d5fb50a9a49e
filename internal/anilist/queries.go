package anilist

import (
	"embed"
	"fmt"
	"strings"
	"sync"
)

//go:embed queries/*.graphql
var queryFS embed.FS

var (
	templatesOnce sync.Once
	templates     map[string]string
	templatesErr  error
)

// Template returns the GraphQL document registered under name. Names are the
// file names under queries/ without the .graphql extension.
func Template(name string) (string, error) {
	templatesOnce.Do(loadTemplates)
	if templatesErr != nil {
		return "", templatesErr
	}
	q, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("anilist: unknown query template %q", name)
	}
	return q, nil
}

func loadTemplates() {
	entries, err := queryFS.ReadDir("queries")
	if err != nil {
		templatesErr = fmt.Errorf("anilist: read query templates: %w", err)
		return
	}
	templates = make(map[string]string, len(entries))
	for _, e := range entries {
		data, err := queryFS.ReadFile("queries/" + e.Name())
		if err != nil {
			templatesErr = fmt.Errorf("anilist: read %s: %w", e.Name(), err)
			return
		}
		templates[strings.TrimSuffix(e.Name(), ".graphql")] = string(data)
	}
}
