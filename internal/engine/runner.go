package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devblac/deposit-listener/internal/config"
	"github.com/devblac/deposit-listener/internal/metrics"
	"github.com/devblac/deposit-listener/internal/record"
	"github.com/devblac/deposit-listener/internal/sink"
	"github.com/devblac/deposit-listener/internal/source/evm"
	"github.com/devblac/deposit-listener/internal/storage"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// Connector yields a connected client for a chain id.
type Connector interface {
	Connect(ctx context.Context, chain string) (evm.Client, error)
}

// LogWriter is the append-only record log.
type LogWriter interface {
	Append(records []record.Record) (int, error)
	Path() string
}

// Index is the optional dedupe index and scan history.
type Index interface {
	FilterNew(ctx context.Context, records []record.Record) ([]record.Record, error)
	MarkWritten(ctx context.Context, records []record.Record) error
	InsertScan(ctx context.Context, sc storage.Scan) error
}

// Options tunes a Runner. Zero values select the reference behavior.
type Options struct {
	Plan             evm.PlanOptions
	FetchConcurrency int
	// QueriesPerSecond paces log queries when positive.
	QueriesPerSecond float64
	QueryBurst       int
	// Persist is config.PersistBatch (write once at the end) or config.PersistIncremental.
	Persist string
	DryRun  bool

	Index   Index
	Sinks   []sink.Sender
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Runner executes scans: resolve, plan, fetch, decode, normalize, persist.
type Runner struct {
	connector Connector
	logs      LogWriter
	event     *abi.Event
	opts      Options
	log       *slog.Logger
	nowFunc   func() time.Time
	newID     func() string

	mu       sync.Mutex
	lastScan time.Time
	lastErr  error
}

// Result summarizes one scan.
type Result struct {
	ScanID      string
	Chain       string
	From        uint64
	To          uint64
	SubRanges   int
	LogsFetched int
	// Records holds the new records; in dry-run mode they were not written.
	Records []record.Record
	Written int
	Skipped int
}

// NewRunner builds a runner writing Deposit records to logs.
func NewRunner(connector Connector, logs LogWriter, event *abi.Event, opts Options) (*Runner, error) {
	if connector == nil || logs == nil || event == nil {
		return nil, errors.New("connector, log writer and event are required")
	}
	if opts.Persist == "" {
		opts.Persist = config.PersistBatch
	}
	if opts.Persist != config.PersistBatch && opts.Persist != config.PersistIncremental {
		return nil, fmt.Errorf("unsupported persist mode %q", opts.Persist)
	}
	if opts.Persist == config.PersistIncremental && opts.FetchConcurrency > 1 {
		return nil, errors.New("incremental persistence requires sequential fetch")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		connector: connector,
		logs:      logs,
		event:     event,
		opts:      opts,
		log:       log,
		nowFunc:   time.Now,
		newID:     func() string { return uuid.NewString() },
	}, nil
}

// LastScan reports when the last scan finished and how it ended.
func (r *Runner) LastScan() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastScan, r.lastErr
}

// Scan runs one request to completion. In batch mode a failure before the final
// append writes nothing; in incremental mode earlier sub-ranges stay persisted.
func (r *Runner) Scan(ctx context.Context, req evm.ScanRequest) (res *Result, err error) {
	started := r.nowFunc()
	res = &Result{ScanID: r.newID(), Chain: req.Chain}
	log := r.log.With("scan_id", res.ScanID, "chain", req.Chain)

	defer func() {
		finished := r.nowFunc()
		r.opts.Metrics.ObserveScan(req.Chain, finished.Sub(started))
		r.mu.Lock()
		r.lastScan, r.lastErr = finished, err
		r.mu.Unlock()
		r.recordScan(ctx, log, res, started, finished, err)
	}()

	client, err := r.connector.Connect(ctx, req.Chain)
	if err != nil {
		r.opts.Metrics.Error(req.Chain, "connect")
		return res, err
	}
	defer client.Close()

	from, to, err := evm.ResolveRange(ctx, client, req.Start, req.End)
	if err != nil {
		r.opts.Metrics.Error(req.Chain, "plan")
		return res, err
	}
	res.From, res.To = from, to

	subs, err := evm.Plan(from, to, r.opts.Plan)
	if err != nil {
		r.opts.Metrics.Error(req.Chain, "plan")
		return res, err
	}
	res.SubRanges = len(subs)

	dec, err := evm.NewDecoder(req.Contract, r.event)
	if err != nil {
		return res, err
	}
	fetcher := evm.NewFetcher(evm.Throttle(client, r.opts.QueriesPerSecond, r.opts.QueryBurst), dec)

	log.Info("scanning blocks", "from", from, "to", to, "sub_ranges", len(subs), "contract", req.Contract.Hex())

	if r.opts.Persist == config.PersistIncremental {
		for _, sub := range subs {
			logs, err := fetcher.Fetch(ctx, sub)
			r.opts.Metrics.SubRangesQueried(req.Chain, 1)
			if err != nil {
				r.opts.Metrics.Error(req.Chain, "fetch")
				return res, err
			}
			recs, err := r.normalize(req, dec, logs, res)
			if err != nil {
				return res, err
			}
			if err := r.persist(ctx, log, req.Chain, recs, res); err != nil {
				return res, err
			}
		}
	} else {
		batches, err := fetcher.FetchAll(ctx, subs, r.opts.FetchConcurrency)
		if err != nil {
			r.opts.Metrics.Error(req.Chain, "fetch")
			return res, err
		}
		r.opts.Metrics.SubRangesQueried(req.Chain, len(subs))
		var all []record.Record
		for _, logs := range batches {
			recs, err := r.normalize(req, dec, logs, res)
			if err != nil {
				return res, err
			}
			all = append(all, recs...)
		}
		if err := r.persist(ctx, log, req.Chain, all, res); err != nil {
			return res, err
		}
	}

	switch {
	case len(res.Records) == 0:
		log.Info("no events found in the specified block range", "skipped", res.Skipped)
	case r.opts.DryRun:
		log.Info("dry run: events not logged", "count", len(res.Records))
	default:
		log.Info("scanned and logged events", "count", res.Written, "file", r.logs.Path())
	}
	return res, nil
}

func (r *Runner) normalize(req evm.ScanRequest, dec *evm.Decoder, logs []types.Log, res *Result) ([]record.Record, error) {
	res.LogsFetched += len(logs)
	r.opts.Metrics.LogsFetched(req.Chain, len(logs))
	deposits, err := dec.DecodeAll(logs)
	if err != nil {
		r.opts.Metrics.Error(req.Chain, "decode")
		return nil, fmt.Errorf("decode deposits: %w", err)
	}
	return record.Normalize(req.Chain, req.Contract, deposits, r.nowFunc()), nil
}

func (r *Runner) persist(ctx context.Context, log *slog.Logger, chain string, recs []record.Record, res *Result) error {
	if r.opts.Index != nil && len(recs) > 0 {
		fresh, err := r.opts.Index.FilterNew(ctx, recs)
		if err != nil {
			r.opts.Metrics.Error(chain, "dedupe")
			return err
		}
		skipped := len(recs) - len(fresh)
		res.Skipped += skipped
		r.opts.Metrics.RecordsSkipped(chain, skipped)
		recs = fresh
	}
	if len(recs) == 0 {
		return nil
	}
	res.Records = append(res.Records, recs...)
	if r.opts.DryRun {
		return nil
	}

	n, err := r.logs.Append(recs)
	if err != nil {
		r.opts.Metrics.Error(chain, "persist")
		return err
	}
	res.Written += n
	r.opts.Metrics.RecordsWritten(chain, n)

	// Rows are already durable here; index and sink failures only degrade.
	if r.opts.Index != nil {
		if err := r.opts.Index.MarkWritten(ctx, recs); err != nil {
			r.opts.Metrics.Error(chain, "dedupe")
			log.Warn("index written deposits", "error", err)
		}
	}
	r.notify(ctx, log, chain, recs)
	return nil
}

func (r *Runner) notify(ctx context.Context, log *slog.Logger, chain string, recs []record.Record) {
	for _, rec := range recs {
		payload := sink.PayloadFromRecord(rec, r.logs.Path())
		for _, s := range r.opts.Sinks {
			if err := s.Send(ctx, payload); err != nil {
				r.opts.Metrics.Error(chain, "notify")
				log.Warn("sink send failed", "tx", rec.TransactionHash, "error", err)
			}
		}
	}
}

func (r *Runner) recordScan(ctx context.Context, log *slog.Logger, res *Result, started, finished time.Time, scanErr error) {
	if r.opts.Index == nil || r.opts.DryRun {
		return
	}
	sc := storage.Scan{
		ID:         res.ScanID,
		Chain:      res.Chain,
		FromBlock:  res.From,
		ToBlock:    res.To,
		SubRanges:  res.SubRanges,
		Records:    res.Written,
		Status:     storage.ScanOK,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if scanErr != nil {
		sc.Status = storage.ScanFailed
		sc.Error = scanErr.Error()
	}
	if err := r.opts.Index.InsertScan(context.WithoutCancel(ctx), sc); err != nil {
		log.Warn("record scan history", "error", err)
	}
}
