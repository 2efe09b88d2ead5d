package verify

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"pyscope/internal/config"
	"pyscope/internal/pathdb"
	"pyscope/internal/query"
)

// Fixture is a test source, possibly containing several virtual files.
// File sections keep the global line numbering of the original text, so
// expected-line annotations stay valid across section boundaries.
type Fixture struct {
	Name     string
	RootPath string
	Files    map[string]string
}

var (
	pathMarker   = regexp.MustCompile(`^#\s*-+\s*path:\s*(\S+)\s*-+\s*#?\s*$`)
	globalMarker = regexp.MustCompile(`^#\s*-+\s*global:\s*ROOT_PATH=(\S+)\s*-+\s*#?\s*$`)
	assertLine   = regexp.MustCompile(`^\s*#\s*(\^)\s*defined:(.*)$`)
)

// ParseFixture splits annotated source into its virtual files. Marker
// lines (`#--- path: foo.py ---#`, `#--- global: ROOT_PATH=... ---#`)
// become blank lines so every section keeps its original line numbers.
// Text before the first marker belongs to a file named after the fixture.
func ParseFixture(name string, content []byte) *Fixture {
	fx := &Fixture{Name: name, Files: map[string]string{}}
	lines := strings.Split(string(content), "\n")

	current := name
	var sections []string // parallel to files order
	bodies := map[string][]string{}
	lineNo := 0

	emit := func(file, line string) {
		if _, ok := bodies[file]; !ok {
			sections = append(sections, file)
			// Pad so the section keeps global line numbers.
			bodies[file] = make([]string, lineNo)
		}
		bodies[file] = append(bodies[file], line)
	}

	for _, line := range lines {
		if m := pathMarker.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			current = m[1]
			emit(current, "")
			lineNo++
			continue
		}
		if m := globalMarker.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			fx.RootPath = m[1]
			emit(current, "")
			lineNo++
			continue
		}
		emit(current, line)
		lineNo++
	}

	for _, file := range sections {
		fx.Files[file] = strings.Join(bodies[file], "\n")
	}
	return fx
}

// Assertion pins one reference to its expected definition lines. An empty
// Expected set asserts the reference is unresolved.
type Assertion struct {
	File     string
	Line     int // line of the referenced identifier
	Col      int // column of the caret, 0-based
	Expected []int
}

// Assertions extracts `# ^ defined: 3, 25` annotations. The caret column
// selects an identifier on the nearest preceding non-annotation line;
// stacked annotation lines all target that same line.
func Assertions(file, content string) []Assertion {
	var out []Assertion
	target := 0
	for i, line := range strings.Split(content, "\n") {
		m := assertLine.FindStringSubmatch(line)
		if m == nil {
			// Blank and comment-only lines never become the target, so a
			// stray comment between a reference and its annotations does
			// not re-anchor them.
			if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "#") {
				target = i + 1
			}
			continue
		}
		if target == 0 {
			continue
		}
		out = append(out, Assertion{
			File:     file,
			Line:     target,
			Col:      strings.Index(line, "^"),
			Expected: parseLines(m[2]),
		})
	}
	return out
}

func parseLines(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return dedupeInts(out)
}

// Failure is one assertion whose actual definition lines differed.
type Failure struct {
	File     string
	Line     int
	Col      int
	Expected []int
	Actual   []int
	Err      error
}

func (f Failure) String() string {
	if f.Err != nil {
		return fmt.Sprintf("%s:%d:%d: %v", f.File, f.Line, f.Col, f.Err)
	}
	return fmt.Sprintf("%s:%d:%d: expected defined at %v, got %v", f.File, f.Line, f.Col, f.Expected, f.Actual)
}

// Report summarizes one fixture run.
type Report struct {
	Total    int
	Passed   int
	Failures []Failure
}

func (r Report) OK() bool { return len(r.Failures) == 0 }

// Run resolves every annotated reference in the fixture and compares the
// resulting definition lines against the expected sets. Comparison is on
// deduplicated sorted line sets; ordering is the resolver's concern, not
// the harness's.
func Run(svc *query.Service, fx *Fixture) Report {
	var report Report

	files := make([]string, 0, len(fx.Files))
	for f := range fx.Files {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		for _, a := range Assertions(file, fx.Files[file]) {
			report.Total++
			defs, err := svc.ResolveAt(a.File, a.Line, a.Col)
			if err != nil {
				report.Failures = append(report.Failures, Failure{
					File: a.File, Line: a.Line, Col: a.Col, Expected: a.Expected, Err: err,
				})
				continue
			}
			var actual []int
			for _, d := range defs {
				actual = append(actual, d.Pos.Line)
			}
			sort.Ints(actual)
			actual = dedupeInts(actual)
			if equalInts(actual, a.Expected) {
				report.Passed++
				continue
			}
			report.Failures = append(report.Failures, Failure{
				File: a.File, Line: a.Line, Col: a.Col, Expected: a.Expected, Actual: actual,
			})
		}
	}
	return report
}

// RunFixture builds an in-memory service over the fixture's virtual
// files and runs its assertions. Fixtures without a ROOT_PATH marker
// resolve imports against the current directory.
func RunFixture(fx *Fixture) Report {
	files := pathdb.MapFS{}
	var cfg config.Config
	cfg.Project.RootPath = fx.RootPath
	if cfg.Project.RootPath == "" {
		cfg.Project.RootPath = "."
	}
	svc := query.New(&cfg, files)
	for name, content := range fx.Files {
		files[name] = content
		svc.AddFiles(name)
	}
	return Run(svc, fx)
}

func dedupeInts(in []int) []int {
	var out []int
	for i, v := range in {
		if i > 0 && in[i-1] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
