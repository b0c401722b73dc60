package adapter

import (
	"encoding/json"
	"regexp"
	"strings"
)

// navigation commands carry no information about the work itself
var ignoredCommands = map[string]bool{
	"cd": true, "pushd": true, "popd": true, "echo": true, "true": true,
	"export": true, "set": true, "source": true, ".": true,
}

// programs whose first argument names what is actually being run
var subcommandPrograms = map[string]bool{
	"go": true, "git": true, "npm": true, "pnpm": true, "yarn": true, "bun": true,
	"cargo": true, "make": true, "docker": true, "kubectl": true, "helm": true,
	"pip": true, "poetry": true, "uv": true, "terraform": true, "gh": true,
	"dotnet": true, "mvn": true, "gradle": true, "bundle": true, "rake": true,
	"python": true, "python3": true, "node": true, "npx": true, "just": true,
}

var (
	separatorPattern = regexp.MustCompile(`\s*(?:&&|\|\||;|\||\n)\s*`)
	envAssignPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=`)
)

// Commands reduces a shell command line to the tool identities it ran:
// one per pipeline or list element, as "program" or "program subcommand".
// Environment assignments, sudo and navigation are dropped.
func Commands(line string) []string {
	var out []string
	for _, part := range separatorPattern.Split(line, -1) {
		fields := strings.Fields(part)
		for len(fields) > 0 && (envAssignPattern.MatchString(fields[0]) || fields[0] == "sudo" || fields[0] == "time") {
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}
		prog := fields[0]
		if i := strings.LastIndex(prog, "/"); i >= 0 && i < len(prog)-1 {
			prog = prog[i+1:]
		}
		prog = strings.Trim(prog, `"'()`)
		if prog == "" || ignoredCommands[prog] {
			continue
		}
		cmd := prog
		if subcommandPrograms[prog] && len(fields) > 1 && isWord(fields[1]) {
			cmd += " " + fields[1]
		}
		out = append(out, cmd)
	}
	return out
}

// isWord reports whether s looks like a subcommand rather than a flag,
// path or quoted argument.
func isWord(s string) bool {
	if s == "" || strings.HasPrefix(s, "-") {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == ':') {
			return false
		}
	}
	return true
}

var failureMarkers = []string{
	"error", "panic:", "fatal", "fail", "traceback", "exception", "segmentation fault",
	"command not found", "no such file", "permission denied", "undefined:",
}

// bashFailure returns the failure output of a Bash response, or "" when the
// command looks successful. Hosts report failures either as a plain string
// or as an object with stderr and an exit code.
func bashFailure(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "error") {
			return strings.TrimSpace(s)
		}
		return ""
	}

	var resp struct {
		Stdout      string `json:"stdout"`
		Stderr      string `json:"stderr"`
		ExitCode    *int   `json:"exit_code"`
		ExitCodeAlt *int   `json:"exitCode"`
		Interrupted bool   `json:"interrupted"`
		IsError     bool   `json:"is_error"`
	}
	if json.Unmarshal(raw, &resp) != nil || resp.Interrupted {
		return ""
	}
	code := resp.ExitCode
	if code == nil {
		code = resp.ExitCodeAlt
	}

	failed := resp.IsError || (code != nil && *code != 0)
	if !failed && code == nil {
		failed = looksFailed(resp.Stderr)
	}
	if !failed {
		return ""
	}
	if out := strings.TrimSpace(resp.Stderr); out != "" {
		return out
	}
	return strings.TrimSpace(resp.Stdout)
}

func looksFailed(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, m := range failureMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
