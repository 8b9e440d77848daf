package cliutil

import (
	"regexp"
	"sort"
	"strings"
)

const redactedPlaceholder = "[redacted]"

// minSecretValueLen keeps short env values such as "1" or "on" from being
// masked everywhere they appear.
const minSecretValueLen = 4

const secretWords = `PASSWORD|PASSWD|SECRET|TOKEN|API_?KEY|ACCESS_?KEY|PRIVATE_?KEY|CREDENTIALS?`

var (
	secretNamePattern = regexp.MustCompile(`(?i)(` + secretWords + `)`)
	// NAME=value or NAME: value, as printed by children dumping their env.
	assignmentPattern = regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:` + secretWords + `)[A-Z0-9_]*)(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
	// --db-password value in a logged command line.
	flagPattern   = regexp.MustCompile(`(?i)(--?[a-z0-9-]*(?:password|passwd|secret|token|api-?key|access-?key)[a-z0-9-]*)(\s+)([^\s-]\S*)`)
	bearerPattern = regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9._~+/=-]+`)
)

// Redactor masks credentials in log messages: values of the child's
// secret-looking environment variables wherever they appear, and common
// key=value, flag and bearer token forms. A nil Redactor applies only the
// generic patterns.
type Redactor struct {
	values *strings.Replacer
}

// NewRedactor builds a redactor for the child's environment, as given by
// child.env and child.envFromFile.
func NewRedactor(env map[string]string) *Redactor {
	var secrets []string
	for key, value := range env {
		if len(value) < minSecretValueLen || !secretNamePattern.MatchString(key) {
			continue
		}
		secrets = append(secrets, value)
	}
	if len(secrets) == 0 {
		return &Redactor{}
	}
	// Longer values first so a secret containing another is masked whole.
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })
	pairs := make([]string, 0, len(secrets)*2)
	for _, value := range secrets {
		pairs = append(pairs, value, redactedPlaceholder)
	}
	return &Redactor{values: strings.NewReplacer(pairs...)}
}

// Redact returns message with credentials replaced by [redacted].
func (r *Redactor) Redact(message string) string {
	if message == "" {
		return message
	}
	if r != nil && r.values != nil {
		message = r.values.Replace(message)
	}
	message = assignmentPattern.ReplaceAllString(message, "$1$2$3"+redactedPlaceholder+"$5")
	message = flagPattern.ReplaceAllString(message, "$1$2"+redactedPlaceholder)
	return bearerPattern.ReplaceAllString(message, "$1 "+redactedPlaceholder)
}
