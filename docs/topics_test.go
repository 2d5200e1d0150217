package docs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

func TestIndex(t *testing.T) {
	topics, err := Index()
	if err != nil {
		t.Fatal(err)
	}
	var listed []string
	for _, topic := range topics {
		listed = append(listed, topic.Name)
		if topic.Summary == "" {
			t.Errorf("topic %q has no summary in the index", topic.Name)
		}
		if _, err := Read(topic.Name); err != nil {
			t.Errorf("Read(%q) failed: %v", topic.Name, err)
		}
	}
	slices.Sort(listed)
	if diff := cmp.Diff(Names(), listed); diff != "" {
		t.Errorf("the index and the topic files differ (-files +index):\n%s", diff)
	}
}

func TestRead(t *testing.T) {
	idx, err := Read()
	if err != nil || !strings.HasPrefix(idx, "# Documentation topics") {
		t.Errorf("Read() = %.30q, %v, want the index", idx, err)
	}

	all, err := Read("*")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range Names() {
		title := "# " + strings.ToUpper(name[:1]) + name[1:]
		if !strings.Contains(all, title) {
			t.Errorf("Read(\"*\") misses %q", title)
		}
	}

	if _, err := Read("portal", "nothing-here"); err == nil {
		t.Error("Read() of an unknown topic succeeded, want an error")
	}
}

func TestSearch(t *testing.T) {
	matches := Search("PHI_PORTAL_ROOT_0")
	if len(matches) == 0 {
		t.Fatal("Search() found nothing")
	}
	for _, m := range matches {
		if m.Topic == "audit" && m.Line > 0 {
			return
		}
	}
	t.Errorf("Search() = %+v, want a line of the audit topic", matches)
}

// Fenced code blocks of the manual are executed as scenarios. A "bash setup"
// block starts a scenario in a fresh folder, "bash run" keeps its output for
// the next "console check", and "bash check" only has to succeed.
const (
	bashSetup    = "bash setup"
	bashRun      = "bash run"
	bashCheck    = "bash check"
	consoleCheck = "console check"
)

type block struct {
	kind    string
	content string
	line    int
}

func TestCodeBlocks(t *testing.T) {
	files, err := filepath.Glob("*.md")
	if err != nil {
		t.Fatal(err)
	}
	files = append(files, "../README.md")

	scenarios := make(map[string][]block)
	for _, file := range files {
		if blocks := codeBlocks(t, file); len(blocks) > 0 {
			scenarios[file] = blocks
		}
	}
	if len(scenarios) == 0 {
		return
	}
	env := phitermEnv(t)

	for _, file := range files {
		t.Run(file, func(t *testing.T) {
			s := &scenario{file: file, env: env, dir: t.TempDir()}
			for _, b := range scenarios[file] {
				s.run(t, b)
			}
		})
	}
}

// phitermEnv builds phiterm and returns an environment running it with a
// frozen clock and no quote source.
func phitermEnv(t *testing.T) []string {
	t.Helper()
	bin := t.TempDir()
	build := exec.Command("go", "build", "-o", filepath.Join(bin, "phiterm"), "../phiterm/")
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("cannot build phiterm: %v\n%s", err, out)
	}
	return append(os.Environ(),
		fmt.Sprintf("PATH=%s%c%s", bin, os.PathListSeparator, os.Getenv("PATH")),
		"PHITERM_TESTING_NOW=2026-01-02T15:04:05Z",
		"PHITERM_RATE_URL=",
	)
}

// codeBlocks returns the executable blocks of a markdown file.
func codeBlocks(t *testing.T, file string) []block {
	t.Helper()
	source, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}

	var blocks []block
	root := goldmark.DefaultParser().Parse(text.NewReader(source))
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !entering || !ok || fcb.Info == nil {
			return ast.WalkContinue, nil
		}
		kind := string(fcb.Info.Segment.Value(source))
		switch kind {
		case bashSetup, bashRun, bashCheck, consoleCheck:
		default:
			return ast.WalkContinue, nil
		}
		var content strings.Builder
		lines := fcb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			content.Write(seg.Value(source))
		}
		line := 1 + strings.Count(string(source[:fcb.Info.Segment.Start]), "\n")
		blocks = append(blocks, block{kind: kind, content: content.String(), line: line})
		return ast.WalkContinue, nil
	})
	return blocks
}

// scenario runs the blocks of one file in order.
type scenario struct {
	file   string
	env    []string
	dir    string
	output string
}

func (s *scenario) run(t *testing.T, b block) {
	t.Helper()
	where := fmt.Sprintf("%s:%d", s.file, b.line)

	if b.kind == consoleCheck {
		got := strings.ReplaceAll(strings.TrimSpace(s.output), "\t", "        ")
		if want := strings.TrimSpace(b.content); got != want {
			t.Errorf("%s: output mismatch:\ngot:\n%s\nwant:\n%s", where, got, want)
		}
		return
	}
	if b.kind == bashSetup {
		s.dir = t.TempDir()
	}

	cmd := exec.Command("bash", "-c", "set -e; "+b.content)
	cmd.Dir = s.dir
	cmd.Env = s.env
	out, err := cmd.CombinedOutput()
	if b.kind == bashRun {
		s.output = string(out)
	}
	if err == nil {
		return
	}
	if b.kind == bashCheck {
		t.Errorf("%s: check failed: %v\n%s", where, err, out)
		return
	}
	t.Fatalf("%s: %s failed: %v\n%s", where, b.kind, err, out)
}
