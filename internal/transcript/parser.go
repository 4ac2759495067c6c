package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// maxTranscriptSize bounds how much of a transcript file is read.
	maxTranscriptSize = 64 * 1024 * 1024

	// maxLineSize bounds a single JSONL line.
	maxLineSize = 10 * 1024 * 1024
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational turn kept from a transcript.
type Message struct {
	Role Role
	Text string
}

// Transcript is the cleaned conversational text of one session.
type Transcript struct {
	// Path is the source file, empty for in-memory text.
	Path string

	// SessionID comes from the JSONL entries, or the file name of a
	// .jsonl transcript.
	SessionID string

	// Content is the text every extraction runs against.
	Content string

	// Messages is populated for JSONL transcripts only.
	Messages []Message

	// SkippedLines counts JSONL lines that failed to decode.
	SkippedLines int

	// Err records why the source could not be read. The transcript is then
	// empty; reading failures never abort extraction.
	Err error
}

// Load reads the transcript at path. A missing or unreadable file yields an
// empty transcript with Err set.
func Load(path string) *Transcript {
	t := &Transcript{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		t.Err = err
		return t
	}
	if info.IsDir() {
		t.Err = fmt.Errorf("%s is a directory", path)
		return t
	}
	if info.Size() > maxTranscriptSize {
		t.Err = fmt.Errorf("transcript too large: %d bytes (max %d)", info.Size(), maxTranscriptSize)
		return t
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Err = err
		return t
	}

	parsed := Parse(string(data), strings.EqualFold(filepath.Ext(path), ".jsonl"))
	parsed.Path = path
	if parsed.SessionID == "" && len(parsed.Messages) > 0 {
		parsed.SessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return parsed
}

// Parse builds a transcript from raw text. When jsonl is false the format
// is still detected: text whose first non-blank line is a JSON object is
// treated as JSONL.
func Parse(raw string, jsonl bool) *Transcript {
	if !jsonl {
		jsonl = firstLineIsObject(raw)
	}
	if !jsonl {
		return &Transcript{Content: raw}
	}
	return parseJSONL(raw)
}

// FromText wraps plain text without format detection.
func FromText(text string) *Transcript {
	return &Transcript{Content: text}
}

// entry covers both the Claude Code log layout
// ({"type":"user","message":{...}}) and the flat layout
// ({"type":"message","role":"user","content":...}).
type entry struct {
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Message   json.RawMessage `json:"message"`
	SessionID string          `json:"sessionId"`
}

type nestedMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func parseJSONL(raw string) *Transcript {
	t := &Transcript{Messages: make([]Message, 0)}

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var parts []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.SkippedLines++
			continue
		}
		if t.SessionID == "" && e.SessionID != "" {
			t.SessionID = e.SessionID
		}

		role, content, ok := e.roleAndContent()
		if !ok {
			continue
		}
		text := contentText(content)
		if text == "" || LooksLikeJSON(text) {
			continue
		}
		t.Messages = append(t.Messages, Message{Role: role, Text: text})
		parts = append(parts, text)
	}
	if err := scanner.Err(); err != nil {
		t.Err = fmt.Errorf("scanning transcript: %w", err)
	}

	t.Content = strings.Join(parts, "\n")
	return t
}

// roleAndContent reports the author and raw content of a conversational
// entry, or false for tool calls, tool results and metadata.
func (e entry) roleAndContent() (Role, json.RawMessage, bool) {
	switch e.Type {
	case "user", "assistant":
		if len(e.Message) == 0 {
			return "", nil, false
		}
		var s string
		if err := json.Unmarshal(e.Message, &s); err == nil {
			quoted, _ := json.Marshal(s)
			return Role(e.Type), quoted, true
		}
		var m nestedMessage
		if err := json.Unmarshal(e.Message, &m); err != nil {
			return "", nil, false
		}
		return Role(e.Type), m.Content, true
	case "message":
		if e.Role != string(RoleUser) && e.Role != string(RoleAssistant) {
			return "", nil, false
		}
		return Role(e.Role), e.Content, true
	default:
		return "", nil, false
	}
}

// contentText returns string content as-is, or the joined text blocks of
// block content.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var texts []string
	for _, b := range blocks {
		if b.Type != "text" {
			continue
		}
		if text := strings.TrimSpace(b.Text); text != "" && !LooksLikeJSON(text) {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}

func firstLineIsObject(raw string) bool {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "{") {
			return false
		}
		var probe map[string]json.RawMessage
		return json.Unmarshal([]byte(line), &probe) == nil
	}
	return false
}
