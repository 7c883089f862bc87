// Package document turns raw document content from the gateway into search
// index records.
package document

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/maraichr/nightcrawler/pkg/models"
)

const indexableExt = ".md"

var (
	titleDisallowed = regexp.MustCompile(`[^a-zA-Z0-9\- _]`)
	idDisallowed    = regexp.MustCompile(`[^a-zA-Z0-9\-]`)
)

// Indexable reports whether the document is eligible for indexing. Only
// markdown sources are; the extension match is case-sensitive.
func Indexable(doc models.Document) bool {
	return path.Ext(doc.URI) == indexableExt
}

// Build derives the index record for one document. rawContent is the HTML
// rendering of the document; it never causes an error, however malformed.
func Build(ref models.ProjectRef, project models.Project, doc models.Document, rawContent string) models.IndexRecord {
	tags := make([]string, len(project.Tags))
	copy(tags, project.Tags)

	return models.IndexRecord{
		ID:          Identifier(doc.URI),
		ProjectID:   ref.ProjectID,
		BranchName:  ref.BranchName,
		ProjectName: project.Name,
		Title:       Title(doc.URI),
		URL:         doc.URI,
		Content:     ExtractText(rawContent),
		Tags:        tags,
	}
}

// Title builds a display title from the file name: extension dropped,
// disallowed characters removed, '-' and '_' turned into spaces and the first
// character upper-cased.
func Title(uri string) string {
	name := path.Base(uri)
	if name == "." || name == "/" {
		return ""
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	name = titleDisallowed.ReplaceAllString(name, "")
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return upperFirst(name)
}

// Identifier returns the index document id for a path: every character other
// than ASCII letters, digits and '-' is dropped. Distinct paths can collide.
func Identifier(uri string) string {
	return idDisallowed.ReplaceAllString(uri, "")
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
