package projection

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	common "github.com/TheCowboyAI/cim-keys-sub008/pkg/domain"
	"github.com/TheCowboyAI/cim-keys-sub008/pkg/domain/pki"
)

// eventLine is the JSONL record shape for events/<date>/<seq>-<kind>.jsonl:
// the wire envelope (event_id, event_kind, correlation_id, causation_id,
// payload) rather than the in-memory pki.Event Go type.
type eventLine struct {
	EventID       string `json:"event_id"`
	EventKind     string `json:"event_kind"`
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id"`
	Payload       any    `json:"payload"`
}

// AppendEventLog appends one line per event to
// events/<YYYY-MM-DD>/<seq>-<kind>.jsonl, where seq is the caller-tracked
// monotonic position in the overall log (the executor serializes commands
// per organization, so the caller already knows this number without the
// writer needing its own counter).
func (w *Writer) AppendEventLog(startSeq int, events []pki.Event) error {
	for i, e := range events {
		if err := w.appendEventLine(startSeq+i, e.EventID, string(e.Kind), e.Identity, e.Payload); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) appendEventLine(seq int, eventID uuid.UUID, kind string, identity common.MessageIdentity, payload any) error {
	line := eventLine{
		EventID:       eventID.String(),
		EventKind:     kind,
		CorrelationID: identity.CorrelationID.String(),
		CausationID:   identity.CausationID.String(),
		Payload:       payload,
	}
	data, err := Canonical(line)
	if err != nil {
		return err
	}

	date := common.TimeOf(eventID).Format("2006-01-02")
	dir := filepath.Join(w.Root, "events", date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("projection: mkdir event log dir: %w", err)
	}

	name := fmt.Sprintf("%05d-%s.jsonl", seq, kind)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("projection: open event log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("projection: append event log line: %w", err)
	}
	return nil
}

// AppendAudit appends one line to audit/operations.log (command execution)
// or audit/access.log (read-path queries), both plain timestamped text
// rather than canonical JSON, since they're for human operators, not replay.
func (w *Writer) AppendAudit(logName, line string) error {
	dir := filepath.Join(w.Root, "audit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("projection: mkdir audit dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, logName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("projection: open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("projection: append audit line: %w", err)
	}
	return nil
}
