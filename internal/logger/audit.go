package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// The audit log is a separate append-only stream for decision-cycle dumps:
// votes, consensus breakdown, sizing breakdown, gate verdict. It stays off
// by default so the main log is not flooded in live mode.

var (
	auditMu     sync.Mutex
	auditLog    *log.Logger
	auditEnable bool
)

func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if w == nil {
		auditLog = nil
		return
	}
	auditLog = log.New(w, "", log.LstdFlags)
}

func EnableAuditDump(enabled bool) {
	auditMu.Lock()
	auditEnable = enabled
	auditMu.Unlock()
}

type auditSection struct {
	Title string
	Body  string
}

func logAudit(kind, instrument string, sections []auditSection) {
	auditMu.Lock()
	l := auditLog
	enabled := auditEnable
	auditMu.Unlock()
	if l == nil || !enabled {
		return
	}
	var b strings.Builder
	b.WriteString("[AUDIT]")
	if kind != "" {
		b.WriteString("[")
		b.WriteString(kind)
		b.WriteString("]")
	}
	if instrument != "" {
		b.WriteString("[")
		b.WriteString(instrument)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

// LogAuditVotes dumps the raw vote set that entered aggregation.
func LogAuditVotes(instrument, votes string) {
	logAudit("votes", instrument, []auditSection{{Title: "VOTES", Body: votes}})
}

// LogAuditDecision dumps the consensus outcome plus the downstream verdicts.
func LogAuditDecision(instrument, consensus, sizing, verdict string) {
	sections := []auditSection{{Title: "CONSENSUS", Body: consensus}}
	if strings.TrimSpace(sizing) != "" {
		sections = append(sections, auditSection{Title: "SIZING", Body: sizing})
	}
	if strings.TrimSpace(verdict) != "" {
		sections = append(sections, auditSection{Title: "GATE", Body: verdict})
	}
	logAudit("decision", instrument, sections)
}
