package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/netask/internal/dispatch"
	"github.com/netask/internal/tui"
	"golang.org/x/term"
)

// reported marks an error already shown to the user. The command still
// exits non-zero.
type reported struct {
	error
}

func (r reported) Unwrap() error {
	return r.error
}

// outcome is the --json rendering of a dispatch.
type outcome struct {
	OK      bool            `json:"ok"`
	Status  int             `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Code    *int            `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func newOutcome(res dispatch.Result, err error) outcome {
	if err == nil {
		return outcome{OK: true, Status: res.StatusCode, Payload: rawPayload(res.Payload)}
	}

	out := outcome{Status: -1, Error: err.Error()}
	if f, ok := dispatch.AsFailure(err); ok {
		out.Status = f.StatusCode
		out.Kind = f.Kind.String()
		if f.Envelope != nil && f.Envelope.HasCode() {
			code := f.Envelope.Code
			out.Code = &code
			out.Message = f.Envelope.Message
		}
	}
	return out
}

// rawPayload keeps JSON payloads as-is and quotes everything else.
func rawPayload(p string) json.RawMessage {
	if json.Valid([]byte(p)) {
		return json.RawMessage(p)
	}
	quoted, _ := json.Marshal(p)
	return quoted
}

// printOutcome writes the dispatch result and returns err so the command
// exits non-zero on failure.
func printOutcome(stdout, stderr io.Writer, res dispatch.Result, err error, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(newOutcome(res, err)); encErr != nil {
			return encErr
		}
		if err != nil {
			return reported{err}
		}
		return nil
	}

	if err != nil {
		fmt.Fprintln(stderr, tui.ErrorStyle.Render(tui.CrossMark+" "+failureLabel(err)))
		fmt.Fprintln(stderr, tui.DimStyle.Render("  "+err.Error()))
		return reported{err}
	}

	fmt.Fprintln(stdout, res.Payload)
	return nil
}

func failureLabel(err error) string {
	f, ok := dispatch.AsFailure(err)
	if !ok {
		return err.Error()
	}
	if f.StatusCode > 0 {
		return fmt.Sprintf("%s failure (HTTP %d)", f.Kind, f.StatusCode)
	}
	return fmt.Sprintf("%s failure", f.Kind)
}

// parseParams turns key=value flags into a parameter map. Later keys win.
func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, found := strings.Cut(p, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", p)
		}
		params[key] = value
	}
	return params, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
