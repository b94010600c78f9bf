package worker

import (
	"errors"
	"fmt"
	"math/rand"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"mailblast/models"
	"mailblast/utils"
)

var (
	// ErrCampaignActive is returned when a second campaign is started
	// while one is already running. Concurrent campaigns would interleave
	// their sends through the same account rotation state.
	ErrCampaignActive = errors.New("another campaign is already running")

	// ErrCampaignNotRunning is returned by control calls that target a
	// campaign the engine is not currently driving.
	ErrCampaignNotRunning = errors.New("campaign is not running")
)

// CampaignStore is the slice of persistence the dispatch engine needs.
// *store.Store satisfies it; tests use an in-memory fake.
type CampaignStore interface {
	GetCampaign(id uint) (*models.Campaign, error)
	UpdateCampaign(campaign *models.Campaign) error
	GetCampaignContacts(campaign *models.Campaign) ([]models.Contact, error)
	AddCampaignLog(log *models.CampaignLog) error
	IsBlacklisted(email string) (bool, error)
	IsUnsubscribed(email string) (bool, error)
	AddToBlacklist(email, source, reason string) error
	MarkContactBounced(email string) error
	GetActiveSMTPAccounts() ([]*models.SMTPAccount, error)
	IncrementSMTPSentCount(acct *models.SMTPAccount) error
}

// ProgressEvent is pushed to notifiers at least once per send and once
// per batch boundary.
type ProgressEvent struct {
	CampaignID   uint   `json:"campaign_id"`
	Status       string `json:"status"`
	Total        int    `json:"total"`
	Sent         int    `json:"sent"`
	Failed       int    `json:"failed"`
	Skipped      int    `json:"skipped"`
	CurrentBatch int    `json:"current_batch"`
	TotalBatches int    `json:"total_batches"`
	CurrentEmail string `json:"current_email,omitempty"`
	WaitSeconds  int    `json:"wait_seconds,omitempty"`
}

// ProgressNotifier receives dispatch and verification progress.
type ProgressNotifier interface {
	Notify(event ProgressEvent)
}

// ProgressFunc adapts a plain function to the ProgressNotifier interface.
type ProgressFunc func(event ProgressEvent)

func (f ProgressFunc) Notify(event ProgressEvent) { f(event) }

const (
	pausePollInterval = 200 * time.Millisecond
	logWriteRetries   = 3
)

// Dispatcher drives one campaign at a time through batching, account
// rotation, personalization, tracking injection and transport.
type Dispatcher struct {
	store        CampaignStore
	transport    utils.Transport
	personalizer *utils.Personalizer
	injector     *utils.TrackingInjector
	log          *logrus.Logger

	// defaultAccount supplies the fallback transport account used when
	// every rotated account is at its daily limit.
	defaultAccount func() (*models.SMTPAccount, error)

	mu        sync.Mutex
	notifiers []ProgressNotifier
	activeID  uint
	paused    bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func NewDispatcher(store CampaignStore, transport utils.Transport, personalizer *utils.Personalizer, injector *utils.TrackingInjector, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		store:          store,
		transport:      transport,
		personalizer:   personalizer,
		injector:       injector,
		log:            log,
		defaultAccount: utils.DefaultAccount,
	}
}

// AddNotifier registers a progress listener. Listeners must tolerate
// bursts; events are delivered synchronously from the send loop.
func (d *Dispatcher) AddNotifier(n ProgressNotifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers = append(d.notifiers, n)
}

// ActiveCampaign reports the campaign currently being dispatched, if any.
func (d *Dispatcher) ActiveCampaign() (uint, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeID, d.activeID != 0
}

// StartCampaign begins dispatching the campaign in a background
// goroutine. Exactly one campaign may run at a time; a second start is
// rejected with ErrCampaignActive rather than queued.
func (d *Dispatcher) StartCampaign(campaignID uint) error {
	campaign, err := d.store.GetCampaign(campaignID)
	if err != nil {
		return fmt.Errorf("failed to load campaign %d: %w", campaignID, err)
	}
	switch campaign.Status {
	case models.CampaignStatusRunning, models.CampaignStatusPaused:
		return ErrCampaignActive
	case models.CampaignStatusCompleted:
		return fmt.Errorf("campaign %d already completed", campaignID)
	}

	d.mu.Lock()
	if d.activeID != 0 {
		d.mu.Unlock()
		return ErrCampaignActive
	}
	d.activeID = campaignID
	d.paused = false
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.mu.Unlock()

	go d.run(campaign)
	return nil
}

// Pause suspends the send loop before its next send. The loop spins on
// the flag, so in-flight SMTP dialogue finishes first.
func (d *Dispatcher) Pause(campaignID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.activeID != campaignID {
		return ErrCampaignNotRunning
	}
	d.paused = true
	return nil
}

// Resume lifts a pause.
func (d *Dispatcher) Resume(campaignID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.activeID != campaignID {
		return ErrCampaignNotRunning
	}
	d.paused = false
	return nil
}

// Stop signals the loop to exit without finishing the current batch.
// All suspension points observe the signal immediately.
func (d *Dispatcher) Stop(campaignID uint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.activeID != campaignID {
		return ErrCampaignNotRunning
	}
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	return nil
}

// Wait blocks until the current run finishes. It returns immediately
// when nothing is running.
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	done := d.doneCh
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (d *Dispatcher) run(campaign *models.Campaign) {
	defer func() {
		d.mu.Lock()
		d.activeID = 0
		d.paused = false
		close(d.doneCh)
		d.mu.Unlock()
	}()

	contacts, err := d.store.GetCampaignContacts(campaign)
	if err != nil {
		d.log.WithError(err).WithField("campaign_id", campaign.ID).Error("failed to load campaign audience")
		d.failCampaign(campaign, err)
		return
	}

	recipients, skipped := d.partition(contacts)
	variants := assignVariants(campaign, len(recipients))

	batchSize := campaign.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	totalBatches := (len(recipients) + batchSize - 1) / batchSize

	now := time.Now()
	campaign.Status = models.CampaignStatusRunning
	campaign.StartedAt = &now
	campaign.TotalEmails = len(contacts)
	campaign.SkippedEmails = skipped
	campaign.SentEmails = 0
	campaign.FailedEmails = 0
	if err := d.store.UpdateCampaign(campaign); err != nil {
		d.log.WithError(err).WithField("campaign_id", campaign.ID).Error("failed to persist campaign start")
		return
	}

	d.log.WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"recipients":  len(recipients),
		"skipped":     skipped,
		"batches":     totalBatches,
	}).Info("campaign dispatch started")

	rotator, err := d.buildRotator()
	if err != nil {
		d.log.WithError(err).Error("failed to load sending accounts")
		d.failCampaign(campaign, err)
		return
	}

	stopped := false

loop:
	for batch := 0; batch < totalBatches; batch++ {
		if d.isStopped() {
			stopped = true
			break loop
		}

		start := batch * batchSize
		end := start + batchSize
		if end > len(recipients) {
			end = len(recipients)
		}

		for i := start; i < end; i++ {
			if !d.waitWhilePaused(campaign) {
				stopped = true
				break loop
			}

			contact := recipients[i]
			d.sendOne(campaign, &contact, variants[i], rotator)

			if err := d.store.UpdateCampaign(campaign); err != nil {
				d.log.WithError(err).Warn("failed to persist campaign counters")
			}
			d.notify(ProgressEvent{
				CampaignID:   campaign.ID,
				Status:       models.CampaignStatusRunning,
				Total:        campaign.TotalEmails,
				Sent:         campaign.SentEmails,
				Failed:       campaign.FailedEmails,
				Skipped:      campaign.SkippedEmails,
				CurrentBatch: batch + 1,
				TotalBatches: totalBatches,
				CurrentEmail: contact.Email,
			})

			if i+1 < end {
				if !d.sleepJittered(campaign.SendDelayMillis) {
					stopped = true
					break loop
				}
			}
		}

		if batch+1 < totalBatches {
			delay := time.Duration(campaign.BatchDelaySecs) * time.Second
			d.notify(ProgressEvent{
				CampaignID:   campaign.ID,
				Status:       "waiting",
				Total:        campaign.TotalEmails,
				Sent:         campaign.SentEmails,
				Failed:       campaign.FailedEmails,
				Skipped:      campaign.SkippedEmails,
				CurrentBatch: batch + 1,
				TotalBatches: totalBatches,
				WaitSeconds:  campaign.BatchDelaySecs,
			})
			if !d.sleep(delay) {
				stopped = true
				break loop
			}
		}
	}

	d.finish(campaign, stopped, totalBatches)
}

// partition splits the audience into sendable recipients and the
// suppressed remainder. Suppressed addresses are counted, never sent to.
func (d *Dispatcher) partition(contacts []models.Contact) ([]models.Contact, int) {
	recipients := make([]models.Contact, 0, len(contacts))
	skipped := 0
	for _, c := range contacts {
		blacklisted, err := d.store.IsBlacklisted(c.Email)
		if err != nil {
			d.log.WithError(err).WithField("email", c.Email).Warn("blacklist check failed, skipping contact")
			skipped++
			continue
		}
		unsubscribed, err := d.store.IsUnsubscribed(c.Email)
		if err != nil {
			d.log.WithError(err).WithField("email", c.Email).Warn("unsubscribe check failed, skipping contact")
			skipped++
			continue
		}
		if blacklisted || unsubscribed {
			skipped++
			continue
		}
		recipients = append(recipients, c)
	}
	return recipients, skipped
}

// assignVariants computes the A/B variant per recipient index. The
// recipient order is left alone; a shuffled index permutation decides
// membership so assignment is uniform-random per run, not seeded.
func assignVariants(campaign *models.Campaign, n int) []string {
	variants := make([]string, n)
	for i := range variants {
		variants[i] = "A"
	}
	if !campaign.ABTestEnabled || campaign.ABSplitPercent <= 0 || n == 0 {
		return variants
	}

	sliceSize := n * campaign.ABSplitPercent / 100
	if 2*sliceSize > n {
		sliceSize = n / 2
	}

	perm := rand.Perm(n)
	// First slice stays on variant A, the next equal slice gets B, the
	// remainder defaults to A.
	for _, idx := range perm[sliceSize : 2*sliceSize] {
		variants[idx] = "B"
	}
	return variants
}

func (d *Dispatcher) buildRotator() (*utils.AccountRotator, error) {
	accounts, err := d.store.GetActiveSMTPAccounts()
	if err != nil {
		return nil, err
	}
	return utils.NewAccountRotator(accounts), nil
}

func (d *Dispatcher) sendOne(campaign *models.Campaign, contact *models.Contact, variant string, rotator *utils.AccountRotator) {
	subject, body := campaign.Subject, campaign.Body
	if variant == "B" {
		subject, body = campaign.SubjectB, campaign.BodyB
	}

	trackingID := utils.NewTrackingID()
	subject = d.personalizer.Personalize(subject, contact, campaign.ID)
	body = d.personalizer.Personalize(body, contact, campaign.ID)
	body = d.injector.Inject(body, campaign.ID, contact.ID, trackingID, campaign.TrackOpens, campaign.TrackClicks)

	acct, rotated := d.pickAccount(rotator)
	logEntry := &models.CampaignLog{
		CampaignID: campaign.ID,
		ContactID:  contact.ID,
		Email:      contact.Email,
		TrackingID: trackingID,
		Variant:    variant,
		SentAt:     time.Now(),
	}
	if acct == nil {
		campaign.FailedEmails++
		logEntry.Status = models.LogStatusFailed
		logEntry.Error = "no sending account available"
		d.persistLog(campaign, logEntry)
		return
	}
	if acct.ID != 0 {
		id := acct.ID
		logEntry.AccountID = &id
	}

	err := d.transport.Send(acct, &utils.OutgoingMessage{
		To:       contact.Email,
		Subject:  subject,
		HTMLBody: body,
		Headers: map[string]string{
			"List-Unsubscribe": fmt.Sprintf("<%s>", d.unsubscribeURL(campaign.ID, contact)),
		},
	})

	if err == nil {
		campaign.SentEmails++
		logEntry.Status = models.LogStatusSent
		if rotated {
			rotator.RecordSend(acct)
			if perr := d.store.IncrementSMTPSentCount(acct); perr != nil {
				d.log.WithError(perr).WithField("account_id", acct.ID).Warn("failed to persist account counter")
			}
		}
		d.persistLog(campaign, logEntry)
		return
	}

	campaign.FailedEmails++
	logEntry.Status = models.LogStatusFailed
	logEntry.Error = err.Error()
	d.log.WithError(err).WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"email":       contact.Email,
	}).Warn("send failed")

	if isHardBounce(err) {
		campaign.BounceCount++
		if berr := d.store.AddToBlacklist(contact.Email, models.BlacklistSourceAuto, "Hard bounce"); berr != nil {
			d.log.WithError(berr).WithField("email", contact.Email).Error("failed to auto-blacklist bounced address")
		}
		if berr := d.store.MarkContactBounced(contact.Email); berr != nil {
			d.log.WithError(berr).WithField("email", contact.Email).Error("failed to mark contact bounced")
		}
	}
	d.persistLog(campaign, logEntry)
}

func (d *Dispatcher) pickAccount(rotator *utils.AccountRotator) (*models.SMTPAccount, bool) {
	acct, err := rotator.NextAccount()
	if err == nil {
		return acct, true
	}
	fallback, derr := d.defaultAccount()
	if derr != nil {
		d.log.WithError(derr).Warn("all accounts at daily limit and no default transport configured")
		return nil, false
	}
	return fallback, false
}

// persistLog writes the campaign log entry with a bounded local retry.
// A log store that stays down pauses the campaign rather than silently
// dropping audit rows.
func (d *Dispatcher) persistLog(campaign *models.Campaign, entry *models.CampaignLog) {
	var err error
	for attempt := 0; attempt < logWriteRetries; attempt++ {
		if err = d.store.AddCampaignLog(entry); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	d.log.WithError(err).WithField("campaign_id", campaign.ID).Error("campaign log writes failing, pausing campaign")
	d.captureError(campaign.ID, "log_write_failed", err)
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

func (d *Dispatcher) unsubscribeURL(campaignID uint, contact *models.Contact) string {
	return fmt.Sprintf("%s/unsubscribe/%d/%d?email=%s",
		strings.TrimSuffix(d.injector.BaseURL, "/"), campaignID, contact.ID, url.QueryEscape(contact.Email))
}

// waitWhilePaused blocks while the paused flag is set. It returns false
// when the stop signal fires during the wait.
func (d *Dispatcher) waitWhilePaused(campaign *models.Campaign) bool {
	announced := false
	for {
		if d.isStopped() {
			return false
		}
		d.mu.Lock()
		paused := d.paused
		d.mu.Unlock()
		if !paused {
			if announced {
				campaign.Status = models.CampaignStatusRunning
				if err := d.store.UpdateCampaign(campaign); err != nil {
					d.log.WithError(err).Warn("failed to persist campaign resume")
				}
			}
			return true
		}
		if !announced {
			announced = true
			campaign.Status = models.CampaignStatusPaused
			if err := d.store.UpdateCampaign(campaign); err != nil {
				d.log.WithError(err).Warn("failed to persist campaign pause")
			}
			d.notify(ProgressEvent{
				CampaignID: campaign.ID,
				Status:     models.CampaignStatusPaused,
				Total:      campaign.TotalEmails,
				Sent:       campaign.SentEmails,
				Failed:     campaign.FailedEmails,
				Skipped:    campaign.SkippedEmails,
			})
		}
		select {
		case <-d.stopCh:
			return false
		case <-time.After(pausePollInterval):
		}
	}
}

// sleepJittered sleeps the base delay with a uniform ±25% jitter so the
// send pattern is not perfectly periodic. Returns false on stop.
func (d *Dispatcher) sleepJittered(baseMillis int) bool {
	if baseMillis <= 0 {
		return !d.isStopped()
	}
	jitter := 0.75 + rand.Float64()*0.5
	return d.sleep(time.Duration(float64(baseMillis)*jitter) * time.Millisecond)
}

func (d *Dispatcher) sleep(dur time.Duration) bool {
	if dur <= 0 {
		return !d.isStopped()
	}
	select {
	case <-d.stopCh:
		return false
	case <-time.After(dur):
		return true
	}
}

func (d *Dispatcher) isStopped() bool {
	select {
	case <-d.stopCh:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) finish(campaign *models.Campaign, stopped bool, totalBatches int) {
	now := time.Now()
	if stopped {
		campaign.Status = models.CampaignStatusStopped
	} else {
		campaign.Status = models.CampaignStatusCompleted
	}
	campaign.CompletedAt = &now
	if err := d.store.UpdateCampaign(campaign); err != nil {
		d.log.WithError(err).WithField("campaign_id", campaign.ID).Error("failed to persist final campaign state")
	}

	d.log.WithFields(logrus.Fields{
		"campaign_id": campaign.ID,
		"status":      campaign.Status,
		"sent":        campaign.SentEmails,
		"failed":      campaign.FailedEmails,
		"skipped":     campaign.SkippedEmails,
	}).Info("campaign dispatch finished")

	d.notify(ProgressEvent{
		CampaignID:   campaign.ID,
		Status:       campaign.Status,
		Total:        campaign.TotalEmails,
		Sent:         campaign.SentEmails,
		Failed:       campaign.FailedEmails,
		Skipped:      campaign.SkippedEmails,
		CurrentBatch: totalBatches,
		TotalBatches: totalBatches,
	})
}

// failCampaign records a run that could not proceed at all. The status
// is failed, not stopped, so a campaign that never sent anything is not
// mistaken for an operator-halted partial run and can be restarted.
func (d *Dispatcher) failCampaign(campaign *models.Campaign, cause error) {
	campaign.Status = models.CampaignStatusFailed
	if err := d.store.UpdateCampaign(campaign); err != nil {
		d.log.WithError(err).Error("failed to persist campaign failure")
	}
	d.captureError(campaign.ID, "campaign_failed", cause)
	d.notify(ProgressEvent{
		CampaignID: campaign.ID,
		Status:     campaign.Status,
		Total:      campaign.TotalEmails,
	})
}

func (d *Dispatcher) captureError(campaignID uint, errorType string, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", errorType)
		scope.SetTag("campaign_id", fmt.Sprintf("%d", campaignID))
		sentry.CaptureException(err)
	})
}

func (d *Dispatcher) notify(event ProgressEvent) {
	d.mu.Lock()
	notifiers := make([]ProgressNotifier, len(d.notifiers))
	copy(notifiers, d.notifiers)
	d.mu.Unlock()
	for _, n := range notifiers {
		n.Notify(event)
	}
}

// hardBounceMarkers are matched case-insensitively against transport
// error text when no structured SMTP code is available.
var hardBounceMarkers = []string{"550", "user unknown", "does not exist", "invalid recipient", "no such user"}

// isHardBounce reports whether a send failure is a permanent
// invalid-mailbox rejection. Structured SMTP codes are preferred;
// substring matching is the fallback for transports that flatten the
// response into a string.
func isHardBounce(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 550, 551, 553, 554:
			return true
		case 552:
			// mailbox full, a soft failure
			return false
		}
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			return false
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range hardBounceMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
