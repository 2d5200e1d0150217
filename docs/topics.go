// Package docs embeds the phiterm manual, one markdown file per topic.
//
// readme.md is the index: every other topic is listed there as a
// "* name: summary" line.
package docs

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
)

//go:embed *.md
var files embed.FS

const index = "readme"

// Topic is an entry of the index.
type Topic struct {
	Name    string
	Summary string
}

// Index returns the topics listed in the index, in order.
func Index() ([]Topic, error) {
	data, err := files.ReadFile(index + ".md")
	if err != nil {
		return nil, err
	}
	var topics []Topic
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "* ")
		if !ok {
			continue
		}
		name, summary, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		topics = append(topics, Topic{Name: strings.TrimSpace(name), Summary: strings.TrimSpace(summary)})
	}
	return topics, sc.Err()
}

// Names returns the name of every embedded topic but the index, sorted.
func Names() []string {
	entries, _ := fs.Glob(files, "*.md")
	var names []string
	for _, e := range entries {
		if name := strings.TrimSuffix(path.Base(e), ".md"); name != index {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Read returns the named topics one after the other. "*" stands for every
// topic, and no name at all for the index.
func Read(names ...string) (string, error) {
	if len(names) == 0 {
		names = []string{index}
	}
	var b strings.Builder
	for _, name := range names {
		expanded := []string{name}
		if name == "*" {
			expanded = Names()
		}
		for _, n := range expanded {
			content, err := files.ReadFile(n + ".md")
			if err != nil {
				return "", fmt.Errorf("topic %q not found, see 'phiterm topic' for the list", n)
			}
			b.Write(content)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// Match is a line of a topic containing a search term.
type Match struct {
	Topic string
	Line  int
	Text  string
}

// Search returns the lines of every topic containing term, ignoring case.
func Search(term string) []Match {
	term = strings.ToLower(term)
	var matches []Match
	for _, name := range Names() {
		data, _ := files.ReadFile(name + ".md")
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(strings.ToLower(line), term) {
				matches = append(matches, Match{Topic: name, Line: i + 1, Text: strings.TrimSpace(line)})
			}
		}
	}
	return matches
}
