package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"mailblast/config"
	"mailblast/models"
)

// BounceStore is the persistence slice the bounce worker needs.
type BounceStore interface {
	AddToBlacklist(email, source, reason string) error
	MarkContactBounced(email string) error
}

// BounceWorker polls the configured return-path mailbox for delivery
// status notifications and blacklists hard-bounced recipients that the
// synchronous dispatch path could not catch (servers that accept first
// and bounce later).
type BounceWorker struct {
	store BounceStore
	cfg   config.IMAPConfig
	log   *logrus.Logger

	interval time.Duration
}

func NewBounceWorker(store BounceStore, cfg config.IMAPConfig, log *logrus.Logger) *BounceWorker {
	return &BounceWorker{
		store:    store,
		cfg:      cfg,
		log:      log,
		interval: 5 * time.Minute,
	}
}

func (bw *BounceWorker) Start(ctx context.Context) {
	if !bw.cfg.Enabled {
		bw.log.Info("bounce mailbox polling disabled")
		return
	}
	bw.log.Info("starting bounce worker")
	ticker := time.NewTicker(bw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := bw.scanMailbox(); err != nil {
				bw.log.WithError(err).Warn("bounce mailbox scan failed")
			}
		case <-ctx.Done():
			bw.log.Info("stopping bounce worker")
			return
		}
	}
}

func (bw *BounceWorker) scanMailbox() error {
	addr := fmt.Sprintf("%s:%d", bw.cfg.Host, bw.cfg.Port)
	c, err := client.DialTLS(addr, &tls.Config{ServerName: bw.cfg.Host})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer c.Logout()

	if err := c.Login(bw.cfg.Username, bw.cfg.Password); err != nil {
		return fmt.Errorf("IMAP login failed: %w", err)
	}

	if _, err := c.Select(bw.cfg.Mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox %s: %w", bw.cfg.Mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	processed := new(imap.SeqSet)
	for msg := range messages {
		email, ok := bw.extractBouncedAddress(msg)
		if !ok {
			continue
		}
		bw.log.WithField("email", email).Info("hard bounce detected in return-path mailbox")
		if err := bw.store.AddToBlacklist(email, models.BlacklistSourceAuto, "Hard bounce (DSN)"); err != nil {
			bw.log.WithError(err).WithField("email", email).Error("failed to blacklist bounced address")
			continue
		}
		if err := bw.store.MarkContactBounced(email); err != nil {
			bw.log.WithError(err).WithField("email", email).Error("failed to mark contact bounced")
		}
		processed.AddNum(msg.SeqNum)
	}
	if err := <-done; err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	if !processed.Empty() {
		flags := []interface{}{imap.SeenFlag}
		if err := c.Store(processed, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
			bw.log.WithError(err).Warn("failed to mark bounce notifications as seen")
		}
	}
	return nil
}

var (
	dsnStatusRegex    = regexp.MustCompile(`Status:\s*5\.\d+\.\d+`)
	dsnRecipientRegex = regexp.MustCompile(`(?:Final|Original)-Recipient:\s*rfc822;\s*<?([^\s<>]+@[^\s<>]+)>?`)
)

// extractBouncedAddress parses a message as a delivery status
// notification and returns the failed recipient. Only permanent (5.x.x)
// failures count; transient DSNs are left alone.
func (bw *BounceWorker) extractBouncedAddress(msg *imap.Message) (string, bool) {
	section := imap.BodySectionName{Peek: true}
	literal := msg.GetBody(&section)
	if literal == nil {
		section = imap.BodySectionName{}
		literal = msg.GetBody(&section)
	}
	if literal == nil {
		return "", false
	}

	mr, err := mail.CreateReader(literal)
	if err != nil {
		return "", false
	}

	var full strings.Builder
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		full.Write(body)
	}

	text := full.String()
	if !dsnStatusRegex.MatchString(text) {
		return "", false
	}
	m := dsnRecipientRegex.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}
