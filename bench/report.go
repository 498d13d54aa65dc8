package bench

import (
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/qwtsc/yarb-tree/xlog"
)

// Summary aggregates the rounds of one container.
type Summary struct {
	Container   string
	Rounds      int
	Inserted    int64
	Duplicates  int64
	Min         time.Duration
	Mean        time.Duration
	Max         time.Duration
	MaxRSSBytes uint64
}

func (s Summary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("container", s.Container)
	enc.AddInt("rounds", s.Rounds)
	enc.AddInt64("inserted", s.Inserted)
	enc.AddInt64("duplicates", s.Duplicates)
	enc.AddDuration("min", s.Min)
	enc.AddDuration("mean", s.Mean)
	enc.AddDuration("max", s.Max)
	enc.AddUint64("maxRssBytes", s.MaxRSSBytes)
	return nil
}

// Summarize groups the results by container, in the order the
// containers first appear.
func Summarize(results []RoundResult) []Summary {
	groups := lo.GroupBy(results, func(res RoundResult) string {
		return res.Container
	})
	names := lo.Uniq(lo.Map(results, func(res RoundResult, _ int) string {
		return res.Container
	}))
	return lo.Map(names, func(name string, _ int) Summary {
		rounds := groups[name]
		elapsed := lo.Map(rounds, func(res RoundResult, _ int) time.Duration {
			return res.Elapsed
		})
		return Summary{
			Container: name,
			Rounds:    len(rounds),
			Inserted: lo.SumBy(rounds, func(res RoundResult) int64 {
				return res.Inserted
			}),
			Duplicates: lo.SumBy(rounds, func(res RoundResult) int64 {
				return res.Duplicates
			}),
			Min:  lo.Min(elapsed),
			Mean: lo.Sum(elapsed) / time.Duration(len(elapsed)),
			Max:  lo.Max(elapsed),
			MaxRSSBytes: lo.MaxBy(rounds, func(a, b RoundResult) bool {
				return a.RSSBytes > b.RSSBytes
			}).RSSBytes,
		}
	})
}

// MeanRatio is the mean elapsed time of container a over b.
func MeanRatio(summaries []Summary, a, b string) (float64, bool) {
	sa, okA := lo.Find(summaries, func(s Summary) bool { return s.Container == a })
	sb, okB := lo.Find(summaries, func(s Summary) bool { return s.Container == b })
	if !okA || !okB || sb.Mean <= 0 {
		return 0, false
	}
	return float64(sa.Mean) / float64(sb.Mean), true
}

// LogSummaries writes one line per container and the rbtree/btree
// ratio if both ran.
func LogSummaries(logger xlog.XLogger, summaries []Summary) {
	for _, s := range summaries {
		logger.Info("bench summary", zap.Object("summary", s))
	}
	if ratio, ok := MeanRatio(summaries, RBTreeContainer, BTreeContainer); ok {
		logger.Info("bench ratio", zap.Float64(RBTreeContainer+"/"+BTreeContainer, ratio))
	}
}
