package utils

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSMTPServer runs a minimal SMTP server that answers RCPT TO with
// the given reply. It accepts connections until the test ends.
func scriptedSMTPServer(t *testing.T, rcptReply string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSMTP(conn, rcptReply)
		}
	}()
	return ln.Addr().String()
}

func serveSMTP(conn net.Conn, rcptReply string) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	fmt.Fprintf(conn, "220 mx.test ESMTP\r\n")
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			fmt.Fprintf(conn, "250-mx.test\r\n250 PIPELINING\r\n")
		case strings.HasPrefix(cmd, "HELO"):
			fmt.Fprintf(conn, "250 mx.test\r\n")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			fmt.Fprintf(conn, "250 OK\r\n")
		case strings.HasPrefix(cmd, "RCPT TO"):
			fmt.Fprintf(conn, "%s\r\n", rcptReply)
		case strings.HasPrefix(cmd, "QUIT"):
			fmt.Fprintf(conn, "221 bye\r\n")
			return
		default:
			fmt.Fprintf(conn, "500 unrecognized\r\n")
		}
	}
}

func newTestProber() *Prober {
	p := NewProber("probe.test", "probe@probe.test")
	p.Timeout = 2 * time.Second
	return p
}

func TestProbeMailboxAccepted(t *testing.T) {
	addr := scriptedSMTPServer(t, "250 2.1.5 OK")

	result := newTestProber().ProbeMailbox("alice@example.com", addr)

	assert.True(t, result.Valid)
	assert.Equal(t, ProbeStatusValid, result.Status)
	assert.Equal(t, Deliverable, result.Deliverable)
	assert.Equal(t, 250, result.SMTPCode)
}

func TestProbeMailboxRejected(t *testing.T) {
	addr := scriptedSMTPServer(t, "550 5.1.1 User unknown")

	result := newTestProber().ProbeMailbox("nobody@example.com", addr)

	assert.False(t, result.Valid)
	assert.Equal(t, ProbeStatusInvalid, result.Status)
	assert.Equal(t, Undeliverable, result.Deliverable)
	assert.Equal(t, 550, result.SMTPCode)
	assert.Contains(t, result.SMTPResponse, "User unknown")
}

func TestProbeMailboxTemporaryFailure(t *testing.T) {
	addr := scriptedSMTPServer(t, "451 4.7.1 Greylisted, try again later")

	result := newTestProber().ProbeMailbox("bob@example.com", addr)

	assert.True(t, result.Valid)
	assert.Equal(t, ProbeStatusTemporary, result.Status)
	assert.Equal(t, DeliveryTempIssue, result.Deliverable)
}

func TestProbeMailboxCannotVerify(t *testing.T) {
	addr := scriptedSMTPServer(t, "252 Cannot VRFY user, but will accept message")

	result := newTestProber().ProbeMailbox("maybe@example.com", addr)

	assert.True(t, result.Valid)
	assert.Equal(t, ProbeStatusUnknown, result.Status)
	assert.Equal(t, DeliveryUnknown, result.Deliverable)
}

func TestProbeConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	result := newTestProber().ProbeMailbox("alice@example.com", addr)

	// An unreachable server is inconclusive, never a bounce
	assert.True(t, result.Valid)
	assert.Equal(t, ProbeStatusError, result.Status)
	assert.Equal(t, DeliveryUnknown, result.Deliverable)
}

func TestProbeTimeout(t *testing.T) {
	// Accepts the connection but never greets
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	p := newTestProber()
	p.Timeout = 200 * time.Millisecond

	start := time.Now()
	result := p.ProbeMailbox("alice@example.com", ln.Addr().String())

	assert.False(t, result.Valid)
	assert.Equal(t, ProbeStatusTimeout, result.Status)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDetectCatchAll(t *testing.T) {
	acceptAll := scriptedSMTPServer(t, "250 OK")
	assert.True(t, newTestProber().DetectCatchAll("example.com", acceptAll))

	rejectAll := scriptedSMTPServer(t, "550 No such user here")
	assert.False(t, newTestProber().DetectCatchAll("example.com", rejectAll))
}

func TestClassifyRcptCodeTable(t *testing.T) {
	cases := []struct {
		code   int
		valid  bool
		status ProbeStatus
	}{
		{250, true, ProbeStatusValid},
		{251, true, ProbeStatusValid},
		{252, true, ProbeStatusUnknown},
		{450, true, ProbeStatusTemporary},
		{452, true, ProbeStatusTemporary},
		{550, false, ProbeStatusInvalid},
		{551, false, ProbeStatusInvalid},
		{553, false, ProbeStatusInvalid},
		{554, false, ProbeStatusInvalid},
		{552, true, ProbeStatusTemporary},
		{999, true, ProbeStatusUnknown},
	}
	for _, tc := range cases {
		result := classifyRcptCode(tc.code)
		assert.Equal(t, tc.valid, result.Valid, "code %d", tc.code)
		assert.Equal(t, tc.status, result.Status, "code %d", tc.code)
	}
}
