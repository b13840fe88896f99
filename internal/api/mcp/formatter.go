package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/threadline-dev/threadline/internal/executor"
	"github.com/threadline-dev/threadline/internal/memory"
	"github.com/threadline-dev/threadline/internal/schema"
	"github.com/threadline-dev/threadline/internal/storage"
	"github.com/threadline-dev/threadline/pkg/types"
)

// Formatter renders operation outcomes into MCP tool-call results. It is the
// only component that knows the response framing, so alternate transports
// reuse everything else unchanged.
//
// Every rendering path, success and failure alike, prefixes a session
// banner whenever the session identifier was minted or replaced during the
// request. Losing the id mid-conversation orphans all subsequent calls, so
// the banner is never optional.
type Formatter struct {
	logger *log.Logger
}

// NewFormatter creates a Formatter. A nil logger falls back to the standard
// logger.
func NewFormatter(logger *log.Logger) *Formatter {
	if logger == nil {
		logger = log.Default()
	}
	return &Formatter{logger: logger}
}

// Success renders a completed operation output.
func (f *Formatter) Success(rc *types.RequestContext, output map[string]interface{}) MCPToolCallResult {
	body, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		f.logger.Printf("formatter: marshal output for %s: %v", rc.FullToolName, err)
		body = []byte(fmt.Sprintf("%v", output))
	}
	return MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: f.banner(rc.SessionInfo) + string(body)}},
	}
}

// diagnostic is the self-contained failure payload. It embeds the provided
// parameters and the expected required fields so an unattended caller can
// correct the call and retry without further round trips.
type diagnostic struct {
	Success          bool                   `json:"success"`
	Error            string                 `json:"error"`
	Phase            string                 `json:"phase,omitempty"`
	ValidationErrors []schema.FieldError    `json:"validationErrors,omitempty"`
	SuggestedName    string                 `json:"suggestedName,omitempty"`
	ProvidedParams   map[string]interface{} `json:"providedParams,omitempty"`
	RequiredFields   []string               `json:"requiredFields,omitempty"`
	Remediation      string                 `json:"remediation"`
}

// Failure renders a business failure as a normal tool result with
// isError:true. opSchema is the operation's merged parameter schema when it
// could be retrieved; it feeds the required-field list best-effort.
func (f *Formatter) Failure(rc *types.RequestContext, callErr error, opSchema map[string]interface{}) MCPToolCallResult {
	d := diagnostic{
		Success:        false,
		Error:          callErr.Error(),
		ProvidedParams: rc.Params,
		RequiredFields: schema.RequiredFields(opSchema),
		Remediation:    "Correct the listed fields and retry the same call.",
	}

	var ve *schema.ValidationError
	if errors.As(callErr, &ve) {
		d.ValidationErrors = ve.Fields
		d.Remediation = "Provide all listed fields with valid values and retry; errors are reported together so one retry suffices."
	}
	var ce *memory.CreateStateError
	if errors.As(callErr, &ce) {
		d.Phase = string(ce.Phase)
		if errors.As(ce.Err, &ve) {
			d.ValidationErrors = ve.Fields
		}
	}
	var de *memory.DuplicateNameError
	if errors.As(callErr, &de) {
		d.SuggestedName = de.Suggested
		d.Remediation = fmt.Sprintf("A record with this name already exists in the workspace; retry with a different name such as %q.", de.Suggested)
	}
	if errors.Is(callErr, storage.ErrNotFound) {
		d.Remediation = "Verify the id or name (and the workspaceId used for name lookup) and retry."
	}
	if errors.Is(callErr, executor.ErrUnavailable) {
		d.Remediation = "The execution path is temporarily refusing work; wait briefly and retry."
	}

	body, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		f.logger.Printf("formatter: marshal diagnostic for %s: %v", rc.FullToolName, err)
		body = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, callErr.Error()))
	}

	return MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: f.banner(rc.SessionInfo) + string(body)}},
		IsError: true,
	}
}

// banner builds the session-identifier banner. Empty when the identifier was
// passed through unchanged.
func (f *Formatter) banner(info types.SessionInfo) string {
	if !info.IsNewSession && !info.IsNonStandardID {
		return ""
	}

	var b strings.Builder
	b.WriteString("=== SESSION " + info.SessionID + " ===\n")
	if info.IsNonStandardID && info.OriginalSessionID != "" {
		fmt.Fprintf(&b, "The provided session id %q is non-standard and has been remapped.\n", info.OriginalSessionID)
	} else if info.IsNewSession {
		b.WriteString("A new session id has been assigned.\n")
	}
	b.WriteString("Use this sessionId in the context of every subsequent tool call.\n")
	b.WriteString("======\n\n")
	return b.String()
}
