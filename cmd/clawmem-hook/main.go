// Command clawmem-hook implements the host-agent hook wire protocol:
// read one JSON object from stdin, write one JSON object to stdout,
// and never exit non-zero. It is the boundary between the external
// hook protocol (out of scope per the specification) and the
// retrieval/feedback engine (in scope).
package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	clawmem "github.com/clawmem/clawmem"
)

// hookRequest accepts both snake_case and camelCase field names, per
// the wire protocol's "accepted either way" contract.
type hookRequest struct {
	SessionID      string `json:"session_id"`
	SessionIDAlt   string `json:"sessionId"`
	Prompt         string `json:"prompt"`
	TranscriptPath string `json:"transcript_path"`
	TranscriptAlt  string `json:"transcriptPath"`
	HookEventName  string `json:"hook_event_name"`
	HookEventAlt   string `json:"hookEventName"`
}

func (r hookRequest) sessionID() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.SessionIDAlt
}

func (r hookRequest) transcriptPath() string {
	if r.TranscriptPath != "" {
		return r.TranscriptPath
	}
	return r.TranscriptAlt
}

func (r hookRequest) hookEventName() string {
	if r.HookEventName != "" {
		return r.HookEventName
	}
	return r.HookEventAlt
}

// hookOutput is the always-written stdout shape.
type hookOutput struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

type hookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// heartbeatSubstrings are silently dropped prompts, in addition to
// empty prompts and ones starting with "/".
var heartbeatSubstrings = []string{"<heartbeat>", "[heartbeat]"}

func main() {
	os.Exit(run())
}

// run never panics its way past main: every failure path still
// writes a structured, possibly-empty hookOutput and returns 0.
func run() int {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	defer func() {
		if r := recover(); r != nil {
			slog.Error("clawmem-hook: panic", "panic", r)
			writeOutput(hookOutput{})
		}
	}()

	var req hookRequest
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		slog.Error("clawmem-hook: reading stdin failed", "error", err)
		writeOutput(hookOutput{})
		return 0
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Error("clawmem-hook: parsing stdin failed", "error", err)
		writeOutput(hookOutput{})
		return 0
	}

	cfg, err := clawmem.LoadConfig()
	if err != nil {
		slog.Error("clawmem-hook: loading config failed", "error", err)
		writeOutput(hookOutput{HookSpecificOutput: hookSpecificOutput{HookEventName: req.hookEventName()}})
		return 0
	}

	engine, err := clawmem.New(cfg, slog.Default())
	if err != nil {
		slog.Error("clawmem-hook: building engine failed", "error", err)
		writeOutput(hookOutput{HookSpecificOutput: hookSpecificOutput{HookEventName: req.hookEventName()}})
		return 0
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	out := dispatch(ctx, engine, cfg, req)
	writeOutput(out)
	return 0
}

func dispatch(ctx context.Context, e *clawmem.Engine, cfg clawmem.Config, req hookRequest) hookOutput {
	name := req.hookEventName()
	out := hookOutput{HookSpecificOutput: hookSpecificOutput{HookEventName: name}}

	switch name {
	case "SessionStart":
		if err := e.Store.StartSession(ctx, req.sessionID(), hostname()); err != nil {
			slog.Warn("clawmem-hook: starting session failed", "error", err)
		}
		return out

	case "SessionEnd":
		referenced, err := e.Feedback.OnSessionEnd(ctx, req.sessionID(), req.transcriptPath())
		if err != nil {
			slog.Warn("clawmem-hook: feedback loop failed", "error", err, "code", clawmem.ErrorCode(err))
		} else {
			slog.Info("clawmem-hook: feedback loop complete", "referenced", referenced)
		}
		return out

	case "UserPromptSubmit":
		return handlePromptSubmit(ctx, e, cfg, req, out)

	default:
		return out
	}
}

func handlePromptSubmit(ctx context.Context, e *clawmem.Engine, cfg clawmem.Config, req hookRequest, out hookOutput) hookOutput {
	prompt := req.Prompt
	if shouldSuppress(prompt, cfg) {
		return out
	}

	hash := sha256.Sum256([]byte(prompt))
	promptHash := hex.EncodeToString(hash[:])
	window := cfg.HookDedupWindow
	if window <= 0 {
		window = 600 * time.Second
	}
	seen, err := e.Store.SeenRecently(ctx, "UserPromptSubmit", promptHash, truncatePreview(prompt), window)
	if err != nil {
		slog.Warn("clawmem-hook: dedupe check failed", "error", err)
	} else if seen {
		return out
	}

	results, err := e.Retrieval.IntentAware(ctx, prompt, 5)
	if err != nil {
		slog.Warn("clawmem-hook: retrieval failed", "error", err, "code", clawmem.ErrorCode(err))
		return out
	}
	if len(results) == 0 {
		return out
	}

	var sb strings.Builder
	var paths []string
	sb.WriteString("<vault-context>\n")
	for _, r := range results {
		fmt.Fprintf(&sb, "## %s (%s)\n%s\n\n", r.Title, r.File, r.Snippet)
		if doc, err := e.Store.GetDocument(ctx, r.DocID); err == nil {
			paths = append(paths, "clawmem://"+doc.Collection+"/"+doc.Path)
		}
	}
	sb.WriteString("</vault-context>")

	if _, err := e.Store.RecordUsage(ctx, req.sessionID(), "UserPromptSubmit", paths, estimateTokens(sb.String())); err != nil {
		slog.Warn("clawmem-hook: recording usage failed", "error", err)
	}

	out.HookSpecificOutput.AdditionalContext = sb.String()
	return out
}

// shouldSuppress implements the dedup & heartbeat suppression rules:
// empty prompts, prompts starting with "/", and known heartbeat
// substrings are dropped before ever reaching retrieval.
func shouldSuppress(prompt string, cfg clawmem.Config) bool {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" || strings.HasPrefix(trimmed, "/") {
		return true
	}
	if cfg.DisableHeartbeatSuppression {
		return false
	}
	patterns := cfg.HeartbeatPatterns
	if len(patterns) == 0 {
		patterns = heartbeatSubstrings
	}
	for _, p := range patterns {
		if strings.Contains(trimmed, p) {
			return true
		}
	}
	return false
}

func truncatePreview(s string) string {
	const max = 200
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func estimateTokens(s string) int {
	return len(s) / 4
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// writeOutput is the single stdout writer: hooks must never write
// anything else to stdout, so every exit path routes through here.
func writeOutput(out hookOutput) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(out); err != nil {
		slog.Error("clawmem-hook: encoding output failed", "error", err)
		fmt.Fprintln(os.Stdout, `{"hookSpecificOutput":{"hookEventName":""}}`)
		return
	}
	os.Stdout.Write(buf.Bytes())
}
