package builder

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"golang.org/x/exp/slices"
)

// ComponentMarker tags the struct declared on the next line as a component
// to register with the engine.
const ComponentMarker = "//anima:component"

var structDecl = regexp.MustCompile(`^type\s+([A-Za-z_][A-Za-z0-9_]*)\s+struct\b`)

// DiscoverComponents returns the sorted, unique names of every tagged
// component type found in sources. Unreadable files are skipped.
func DiscoverComponents(sources []string) []string {
	var found []string
	for _, src := range sources {
		f, err := os.Open(src)
		if err != nil {
			continue
		}
		found = append(found, scanComponents(bufio.NewScanner(f))...)
		f.Close()
	}
	slices.Sort(found)
	return slices.Compact(found)
}

func scanComponents(sc *bufio.Scanner) []string {
	var out []string
	tagged := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == ComponentMarker:
			tagged = true
		case line == "" || strings.HasPrefix(line, "//"):
		case tagged:
			if m := structDecl.FindStringSubmatch(line); m != nil {
				out = append(out, m[1])
			}
			tagged = false
		}
	}
	return out
}

func registrationBlock(components []string) string {
	var sb strings.Builder
	for _, c := range components {
		sb.WriteString("\tr.Register(\"" + c + "\", func() any { return &" + c + "{} })\n")
	}
	return sb.String()
}
