package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/devsync-io/devsync/backend/internal/model/project"
)

// Envelope is the structured result carried in the body of every
// "ai"-sender message.
type Envelope struct {
	Text     string           `json:"text"`
	FileTree project.FileTree `json:"fileTree,omitempty"`
}

// OutcomeKind tags how the raw model output became an Envelope.
type OutcomeKind int

const (
	// OutcomeParsed means the output parsed directly.
	OutcomeParsed OutcomeKind = iota
	// OutcomeRecovered means textual repair or fallback extraction was
	// needed. The envelope is still always valid.
	OutcomeRecovered
	// OutcomeFailed means the capability itself failed (error, timeout,
	// empty prompt); Reason carries the user-facing cause.
	OutcomeFailed
)

// Outcome is the tagged result of the parse-repair-extract chain.
type Outcome struct {
	Kind     OutcomeKind
	Envelope Envelope
	Reason   string
}

var (
	fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

	// Textual repairs for the most common model JSON mistakes.
	bareKeyRe       = regexp.MustCompile(`([{\,])\s*([A-Za-z0-9_]+)\s*:`)
	bareValueRe     = regexp.MustCompile(`:\s*([A-Za-z0-9_]+)\s*([,\}])`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

	textFieldRe = regexp.MustCompile(`"text"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// ParseResult turns raw model output into a valid Envelope. The chain
// is parse, then textual repair, then regex extraction plus a scaffold
// synthesized from the prompt. It never surfaces a parse error: the
// final stage always produces a deterministic, valid fallback.
func ParseResult(raw, prompt string, scaffold ScaffoldFunc) Outcome {
	jsonText := raw
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		jsonText = m[1]
	}

	if env, ok := decodeEnvelope(jsonText, prompt); ok {
		return Outcome{Kind: OutcomeParsed, Envelope: env}
	}

	if env, ok := decodeEnvelope(repairJSON(jsonText), prompt); ok {
		return Outcome{Kind: OutcomeRecovered, Envelope: env}
	}

	return Outcome{Kind: OutcomeRecovered, Envelope: extractFallback(raw, prompt, scaffold)}
}

// decodeEnvelope parses text as a JSON object and fills a default text
// field when the model omitted one.
func decodeEnvelope(text, prompt string) (Envelope, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return Envelope{}, false
	}

	var env Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return Envelope{}, false
	}

	if strings.TrimSpace(env.Text) == "" {
		env.Text = fmt.Sprintf("Here's a solution for your request: %q", prompt)
	}
	return env, true
}

// repairJSON applies best-effort fixes: quoting bare keys and values
// and stripping trailing commas.
func repairJSON(text string) string {
	fixed := bareKeyRe.ReplaceAllString(text, `$1"$2":`)
	fixed = bareValueRe.ReplaceAllString(fixed, `:"$1"$2`)
	fixed = trailingCommaRe.ReplaceAllString(fixed, `$1`)
	return fixed
}

// extractFallback pulls a text value out of the raw output by pattern
// matching and synthesizes a starter file set from the prompt.
func extractFallback(raw, prompt string, scaffold ScaffoldFunc) Envelope {
	text := fmt.Sprintf("I've created some starter code based on your request: %q. "+
		"Feel free to modify it to better suit your needs.", prompt)
	if m := textFieldRe.FindStringSubmatch(raw); m != nil && m[1] != "" {
		if unquoted, err := unescapeJSONString(m[1]); err == nil {
			text = unquoted
		}
	}

	return Envelope{Text: text, FileTree: scaffold(prompt)}
}

func unescapeJSONString(s string) (string, error) {
	var out string
	err := json.Unmarshal([]byte(`"`+s+`"`), &out)
	return out, err
}
