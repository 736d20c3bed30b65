// Package processor implements the balance processor service. For every transaction notification consumed from the
// message broker, the processor extracts the addresses involved in the transaction and its token events, keeps the
// ones tracked in the store, reads their current balances from the ledger, writes them to the store and publishes one
// balance message per updated account.
//
// Notifications are always acknowledged: a failure while processing one is logged and the notification dropped. Only
// a failure to publish, or losing the broker connection, stops the processor.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/tarancss/balproc/lib/block"
	"github.com/tarancss/balproc/lib/block/types"
	"github.com/tarancss/balproc/lib/metrics"
	"github.com/tarancss/balproc/lib/msg"
	"github.com/tarancss/balproc/lib/store"
)

// Errors returned.
var (
	ErrPublish   = errors.New("cannot publish balance message")
	ErrMalformed = errors.New("malformed notification")
)

// DefaultFetchTimeout applies when Options.FetchTimeout is not set.
const DefaultFetchTimeout = 10 * time.Second

// Options bound the work done by the processor.
type Options struct {
	Service          string        // prefix of the routing keys, also the metrics label
	Workers          int           // notifications processed at once
	FetchTimeout     time.Duration // per ledger query
	FetchConcurrency int           // ledger queries in flight across all notifications
}

// Processor implements the balance processor service.
type Processor struct {
	ledger block.Ledger
	db     store.DB
	mb     msg.MsgBroker
	opts   Options
	sem    *semaphore.Weighted
	log    logrus.FieldLogger
}

// New instantiates a new balance processor.
func New(ledger block.Ledger, db store.DB, mb msg.MsgBroker, opts Options, log logrus.FieldLogger) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}

	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}

	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Processor{
		ledger: ledger,
		db:     db,
		mb:     mb,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.FetchConcurrency)),
		log:    log.WithField("service", opts.Service),
	}
}

// Run consumes notifications with Options.Workers goroutines until ctx is done, the broker connection is lost or a
// balance message cannot be published. It returns nil only when ctx is done.
func (p *Processor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deliveries, errs, err := p.mb.GetNotifications(ctx)
	if err != nil {
		return fmt.Errorf("cannot consume notifications: %w", err)
	}

	p.log.WithField("workers", p.opts.Workers).Info("Processing notifications")

	fatal := make(chan error, p.opts.Workers)

	var wg sync.WaitGroup

	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for d := range deliveries {
				if err := p.Handle(ctx, d); err != nil {
					fatal <- err

					cancel()

					return
				}
			}
		}()
	}

	var ret error

	select {
	case <-ctx.Done():
	case err, ok := <-errs:
		if !ok || err == nil {
			err = msg.ErrClosed
		}

		ret = err
	case err := <-fatal:
		ret = err
	}

	cancel()
	wg.Wait()

	if ret == nil {
		select {
		case ret = <-fatal:
		default:
		}
	}

	return ret
}

// Handle processes one delivery and acknowledges it. Only ErrPublish is returned; every other failure is logged.
func (p *Processor) Handle(ctx context.Context, d msg.Delivery) error {
	start := time.Now()
	log := p.log.WithField("delivery", uuid.NewString())
	outcome := metrics.OutcomeOK

	defer func() {
		if err := d.Ack(); err != nil {
			log.WithError(err).Error("Cannot acknowledge notification")
		}

		metrics.Notifications.WithLabelValues(p.opts.Service, outcome).Inc()
		metrics.PipelineLatency.WithLabelValues(p.opts.Service).Observe(time.Since(start).Seconds())
	}()

	n, err := parseNotification(d.Body)
	if err != nil {
		log.WithField("key", d.Key).WithError(err).Warn("Dropping malformed notification")

		outcome = metrics.OutcomeMalformed

		return nil
	}

	log = log.WithField("hash", n.Hash)

	if err = p.process(ctx, n.Hash, log); err != nil {
		outcome = metrics.OutcomeFailed

		if errors.Is(err, ErrPublish) {
			return err
		}

		log.WithError(err).Error("Cannot reconcile balances")
	}

	return nil
}

func parseNotification(body []byte) (msg.Notification, error) {
	var n msg.Notification

	if err := json.Unmarshal(body, &n); err != nil {
		return n, fmt.Errorf("%w: %v", ErrMalformed, err) //nolint:errorlint // keep a single sentinel
	}

	if n.Hash == "" {
		return n, fmt.Errorf("%w: missing hash", ErrMalformed)
	}

	return n, nil
}

// process runs the pipeline for one transaction.
func (p *Processor) process(ctx context.Context, hash string, log logrus.FieldLogger) error {
	tx, r, err := p.lookup(ctx, hash, log)
	if err != nil {
		return err
	}

	cands := Extract(tx, r, log)
	metrics.Candidates.WithLabelValues(p.opts.Service, "extracted").Add(float64(len(cands)))

	tracked, err := p.filter(ctx, cands)
	if err != nil {
		return err
	}

	metrics.Candidates.WithLabelValues(p.opts.Service, "tracked").Add(float64(len(tracked)))

	if len(tracked) == 0 {
		log.WithField("candidates", len(cands)).Debug("No tracked addresses in transaction")

		return nil
	}

	updates := p.fetch(ctx, tracked, log)
	accounts := p.reconcile(ctx, updates, log)

	return p.publish(BuildMessages(accounts, tx, r), log)
}

// lookup reads the transaction and its receipt. A missing receipt (pending transaction) is not an error: the
// transaction addresses are still reconciled.
func (p *Processor) lookup(ctx context.Context, hash string, log logrus.FieldLogger) (*types.Trans, *types.Receipt, error) {
	tctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	tx, err := p.ledger.GetTransaction(tctx, hash)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot get transaction: %w", err)
	}

	rctx, rcancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer rcancel()

	r, err := p.ledger.GetReceipt(rctx, hash)
	if errors.Is(err, types.ErrNoReceipt) {
		log.Warn("No receipt for transaction, reconciling transaction addresses only")

		return tx, nil, nil
	}

	if err != nil {
		return nil, nil, fmt.Errorf("cannot get receipt: %w", err)
	}

	return tx, r, nil
}
