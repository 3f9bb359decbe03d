package walker

import "strings"

// docBefore returns the comment block ending on the line above startLine
// (1-based). Both /** */ blocks and runs of // lines are recognized.
func docBefore(lines []string, startLine int) string {
	idx := startLine - 2
	if idx < 0 || idx >= len(lines) {
		return ""
	}
	trimmed := strings.TrimSpace(lines[idx])
	switch {
	case strings.HasSuffix(trimmed, "*/"):
		return blockComment(lines, idx)
	case strings.HasPrefix(trimmed, "//"):
		return lineComments(lines, idx)
	}
	return ""
}

// blockComment scans backwards from endIdx to the opening /*.
func blockComment(lines []string, endIdx int) string {
	start := endIdx
	for start >= 0 && !strings.Contains(lines[start], "/*") {
		start--
	}
	if start < 0 {
		return ""
	}
	body := strings.Join(lines[start:endIdx+1], "\n")
	body = strings.TrimSpace(body)
	if i := strings.Index(body, "/*"); i >= 0 {
		body = body[i:]
	}
	body = strings.TrimPrefix(body, "/**")
	body = strings.TrimPrefix(body, "/*")
	body = strings.TrimSuffix(body, "*/")

	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "* ")
		line = strings.TrimPrefix(line, "*")
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func lineComments(lines []string, endIdx int) string {
	start := endIdx
	for start-1 >= 0 && strings.HasPrefix(strings.TrimSpace(lines[start-1]), "//") {
		start--
	}
	out := make([]string, 0, endIdx-start+1)
	for _, line := range lines[start : endIdx+1] {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "//")
		out = append(out, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
