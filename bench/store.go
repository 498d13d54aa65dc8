package bench

import (
	"context"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/qwtsc/yarb-tree/lib/infra"
	"github.com/qwtsc/yarb-tree/xlog"
)

// ReportRecord is the persisted RoundResult.
type ReportRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index;size:32"`
	Round      int
	Container  string `gorm:"size:32"`
	Workload   string `gorm:"size:16"`
	Total      int
	Inserted   int64
	Duplicates int64
	ElapsedNs  int64
	RSSBytes   uint64
	CreatedAt  time.Time
}

func (ReportRecord) TableName() string {
	return "bench_reports"
}

func newReportRecord(res RoundResult) ReportRecord {
	return ReportRecord{
		RunID:      res.RunID,
		Round:      res.Round,
		Container:  res.Container,
		Workload:   res.Workload.String(),
		Total:      res.Total,
		Inserted:   res.Inserted,
		Duplicates: res.Duplicates,
		ElapsedNs:  res.Elapsed.Nanoseconds(),
		RSSBytes:   res.RSSBytes,
	}
}

func (rec ReportRecord) result() RoundResult {
	return RoundResult{
		RunID:      rec.RunID,
		Round:      rec.Round,
		Container:  rec.Container,
		Workload:   WorkloadKind(rec.Workload),
		Total:      rec.Total,
		Inserted:   rec.Inserted,
		Duplicates: rec.Duplicates,
		Elapsed:    time.Duration(rec.ElapsedNs),
		RSSBytes:   rec.RSSBytes,
	}
}

// ReportStore keeps the bench results in a sqlite file.
type ReportStore struct {
	db *gorm.DB
}

func OpenReportStore(path string, logger xlog.XLogger) (*ReportStore, error) {
	store, err := openReportStore(sqlite.Open(path), logger)
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "open report db "+path)
	}
	return store, nil
}

// openReportStore closes the connection again if the migration fails.
func openReportStore(dialector gorm.Dialector, logger xlog.XLogger) (*ReportStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: xlog.NewGormXLogger(logger, xlog.WithGormXLoggerIgnoreRecord404Err()),
	})
	if err != nil {
		return nil, err
	}
	store := &ReportStore{db: db}
	if err = db.AutoMigrate(&ReportRecord{}); err != nil {
		return nil, multierr.Combine(
			infra.WrapErrorStackWithMessage(err, "migrate report db"),
			store.Close(),
		)
	}
	return store, nil
}

func (s *ReportStore) Save(ctx context.Context, results []RoundResult) error {
	if len(results) == 0 {
		return nil
	}
	records := lo.Map(results, func(res RoundResult, _ int) ReportRecord {
		return newReportRecord(res)
	})
	if err := s.db.WithContext(ctx).CreateInBatches(records, 100).Error; err != nil {
		return infra.WrapErrorStackWithMessage(err, "save bench reports")
	}
	return nil
}

// ListRun returns the results of a run ordered by round and id.
func (s *ReportStore) ListRun(ctx context.Context, runID string) ([]RoundResult, error) {
	records := make([]ReportRecord, 0, 16)
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("round, id").
		Find(&records).Error
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "list bench reports")
	}
	return lo.Map(records, func(rec ReportRecord, _ int) RoundResult {
		return rec.result()
	}), nil
}

// RunIDs returns the stored run ids, the latest first.
func (s *ReportStore) RunIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, 8)
	err := s.db.WithContext(ctx).
		Model(&ReportRecord{}).
		Group("run_id").
		Order("MAX(id) DESC").
		Pluck("run_id", &ids).Error
	if err != nil {
		return nil, infra.WrapErrorStackWithMessage(err, "list bench run ids")
	}
	return ids, nil
}

func (s *ReportStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return infra.WrapErrorStackWithMessage(err, "report db")
	}
	return sqlDB.Close()
}
