package utils

import (
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProbeStatus classifies the outcome of a mailbox probe
type ProbeStatus string

const (
	ProbeStatusValid     ProbeStatus = "valid"
	ProbeStatusInvalid   ProbeStatus = "invalid"
	ProbeStatusUnknown   ProbeStatus = "unknown"
	ProbeStatusTemporary ProbeStatus = "temporary"
	ProbeStatusTimeout   ProbeStatus = "timeout"
	ProbeStatusError     ProbeStatus = "error"
)

// Deliverability is the probe's verdict on whether mail would be accepted
type Deliverability string

const (
	Deliverable       Deliverability = "deliverable"
	Undeliverable     Deliverability = "undeliverable"
	DeliveryUnknown   Deliverability = "unknown"
	DeliveryTempIssue Deliverability = "temporary_issue"
)

// ProbeResult is the outcome of a single RCPT TO probe
type ProbeResult struct {
	Valid        bool           `json:"valid"`
	Status       ProbeStatus    `json:"status"`
	Deliverable  Deliverability `json:"deliverable"`
	Reason       string         `json:"reason,omitempty"`
	SMTPCode     int            `json:"smtp_code,omitempty"`
	SMTPResponse string         `json:"smtp_response,omitempty"`
}

// Prober performs a minimal SMTP dialogue against a mail server to test
// whether a mailbox exists. It never sends mail: the session stops after
// the RCPT TO response and always QUITs.
type Prober struct {
	HeloName  string
	FromEmail string
	Timeout   time.Duration

	// dial is swapped in tests to point probes at a local listener
	dial func(addr string, timeout time.Duration) (net.Conn, error)
}

const defaultProbeTimeout = 10 * time.Second

func NewProber(heloName, fromEmail string) *Prober {
	return &Prober{
		HeloName:  heloName,
		FromEmail: fromEmail,
		Timeout:   defaultProbeTimeout,
		dial: func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
	}
}

// ProbeMailbox opens a raw connection to port 25 of mxHost and walks the
// Greeting → EHLO (→ HELO) → MAIL FROM → RCPT TO state machine. The RCPT
// response code is the verdict. One deadline covers the whole exchange, so
// a hung server cannot stall past the configured timeout.
func (p *Prober) ProbeMailbox(email, mxHost string) *ProbeResult {
	addr := mxHost
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(mxHost, "25")
	}

	conn, err := p.dial(addr, p.Timeout)
	if err != nil {
		// An unreachable server is inconclusive, not bounce evidence
		return p.transportResult(err, "connection failed: "+err.Error())
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(p.Timeout))
	tp := textproto.NewConn(conn)

	// Greeting
	code, msg, err := tp.ReadResponse(220)
	if err != nil {
		if isTimeout(err) {
			return timeoutResult()
		}
		return &ProbeResult{
			Valid:        true,
			Status:       ProbeStatusError,
			Deliverable:  DeliveryUnknown,
			Reason:       "unexpected greeting",
			SMTPCode:     code,
			SMTPResponse: responseText(err, msg),
		}
	}

	// EHLO, falling back to HELO for servers that reject it
	if _, _, err := p.command(tp, 250, "EHLO %s", p.HeloName); err != nil {
		if isTimeout(err) {
			return timeoutResult()
		}
		if _, _, err := p.command(tp, 250, "HELO %s", p.HeloName); err != nil {
			if isTimeout(err) {
				return timeoutResult()
			}
			return &ProbeResult{
				Valid:       true,
				Status:      ProbeStatusError,
				Deliverable: DeliveryUnknown,
				Reason:      "server rejected EHLO and HELO",
			}
		}
	}

	// MAIL FROM
	if code, msg, err := p.command(tp, 250, "MAIL FROM:<%s>", p.FromEmail); err != nil {
		if isTimeout(err) {
			return timeoutResult()
		}
		return &ProbeResult{
			Valid:        true,
			Status:       ProbeStatusError,
			Deliverable:  DeliveryUnknown,
			Reason:       "server rejected sender",
			SMTPCode:     code,
			SMTPResponse: responseText(err, msg),
		}
	}

	// RCPT TO is the actual test; any 3-digit reply is a verdict, so read
	// with expectCode -1 and classify the code ourselves.
	code, msg, err = p.command(tp, -1, "RCPT TO:<%s>", email)
	if err != nil && code == 0 {
		if isTimeout(err) {
			return timeoutResult()
		}
		return p.transportResult(err, "connection lost during RCPT")
	}

	result := classifyRcptCode(code)
	result.SMTPCode = code
	result.SMTPResponse = responseText(err, msg)

	// Best effort; the verdict is already in hand
	_ = tp.PrintfLine("QUIT")

	return result
}

// DetectCatchAll probes a syntactically valid but pseudo-random local-part
// at the domain. A 250 acceptance means the server takes anything, which
// makes per-mailbox verdicts on that domain unreliable.
func (p *Prober) DetectCatchAll(domain, mxHost string) bool {
	probe := fmt.Sprintf("probe-%s@%s", strings.ReplaceAll(uuid.New().String(), "-", "")[:16], domain)
	result := p.ProbeMailbox(probe, mxHost)
	return result.Valid && result.SMTPCode == 250
}

// command sends one SMTP command and reads the reply. When expectCode is
// negative the raw code is returned without being treated as an error.
func (p *Prober) command(tp *textproto.Conn, expectCode int, format string, args ...interface{}) (int, string, error) {
	if err := tp.PrintfLine(format, args...); err != nil {
		return 0, "", err
	}
	code, msg, err := tp.ReadResponse(expectCode)
	if expectCode < 0 && code > 0 {
		return code, msg, nil
	}
	return code, msg, err
}

// classifyRcptCode maps a RCPT TO response code onto the verdict table.
func classifyRcptCode(code int) *ProbeResult {
	switch code {
	case 250, 251:
		return &ProbeResult{Valid: true, Status: ProbeStatusValid, Deliverable: Deliverable}
	case 252:
		// Server cannot verify but would accept
		return &ProbeResult{Valid: true, Status: ProbeStatusUnknown, Deliverable: DeliveryUnknown}
	case 550, 551, 553, 554:
		return &ProbeResult{
			Valid:       false,
			Status:      ProbeStatusInvalid,
			Deliverable: Undeliverable,
			Reason:      "mailbox rejected",
		}
	case 450, 451, 452, 552:
		return &ProbeResult{
			Valid:       true,
			Status:      ProbeStatusTemporary,
			Deliverable: DeliveryTempIssue,
			Reason:      "temporary failure",
		}
	default:
		return &ProbeResult{Valid: true, Status: ProbeStatusUnknown, Deliverable: DeliveryUnknown}
	}
}

func (p *Prober) transportResult(err error, reason string) *ProbeResult {
	if isTimeout(err) {
		return timeoutResult()
	}
	return &ProbeResult{
		Valid:       true,
		Status:      ProbeStatusError,
		Deliverable: DeliveryUnknown,
		Reason:      reason,
	}
}

func timeoutResult() *ProbeResult {
	return &ProbeResult{
		Valid:       false,
		Status:      ProbeStatusTimeout,
		Deliverable: DeliveryUnknown,
		Reason:      "probe timed out",
	}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "i/o timeout")
}

func responseText(err error, msg string) string {
	if msg != "" {
		return msg
	}
	if te, ok := err.(*textproto.Error); ok {
		return te.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
