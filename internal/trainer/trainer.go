package trainer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tensorplex-labs/dknn/internal/dataset"
	"github.com/tensorplex-labs/dknn/internal/dknn"
	"github.com/tensorplex-labs/dknn/internal/embedding"
	"github.com/tensorplex-labs/dknn/internal/utils/logger"
)

// Trainer owns the embedding model, its optimizer and the dknn layer for one
// run. It is not safe for concurrent use.
type Trainer struct {
	opts       Options
	layerCfg   dknn.Config
	model      embedding.Model
	optimizer  *embedding.SGD
	layer      *dknn.Layer
	classifier *dknn.Classifier

	train, valid, test *dataset.Dataset
	queries            *dataset.Loader
	neighbors          *dataset.Loader

	report *Report
	id     string
	tracer trace.Tracer

	bestAcc   float64
	bestEpoch int
	best      []*mat.Dense
}

// New validates the configuration against the data and prepares a run. The
// report file is opened when opts.LogDir is set.
func New(opts Options, layerCfg dknn.Config, model embedding.Model, train, valid, test *dataset.Dataset) (*Trainer, error) {
	if err := layerCfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "layer config")
	}
	if err := layerCfg.ValidateCandidates(opts.NumTrainNeighbors); err != nil {
		return nil, errors.Wrap(err, "neighbor batch")
	}

	queries, err := dataset.NewLoader(train, opts.NumTrainQueries, opts.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "query loader")
	}
	neighbors, err := dataset.NewLoader(train, opts.NumTrainNeighbors, opts.Seed+1)
	if err != nil {
		return nil, errors.Wrap(err, "neighbor loader")
	}

	layer, err := dknn.NewLayer(layerCfg, dknn.NewNoiseSource(opts.Seed+2))
	if err != nil {
		return nil, errors.Wrap(err, "dknn layer")
	}
	classifier, err := dknn.NewClassifier(layerCfg.K, dknn.SquaredEuclidean)
	if err != nil {
		return nil, errors.Wrap(err, "classifier")
	}

	t := &Trainer{
		opts:       opts,
		layerCfg:   layerCfg,
		model:      model,
		optimizer:  embedding.NewSGD(learningRate(opts.NLogLR), opts.Momentum, opts.WeightDecay),
		layer:      layer,
		classifier: classifier,
		train:      train,
		valid:      valid,
		test:       test,
		queries:    queries,
		neighbors:  neighbors,
		tracer:     otel.Tracer("dknn-trainer"),
		id: ExperimentID(opts.Dataset, string(layerCfg.Algorithm), layerCfg.K,
			layerCfg.Tau, opts.NLogLR, opts.NumTrainNeighbors),
	}

	if opts.LogDir != "" {
		if t.report, err = OpenReport(opts.LogDir, t.id); err != nil {
			return nil, err
		}
	}

	logger.Sugar().Infow("Prepared dknn trainer",
		"experimentID", t.id,
		"layer", layerCfg,
		"trainRows", train.Len(),
		"validRows", valid.Len(),
		"testRows", test.Len(),
	)
	return t, nil
}

func (t *Trainer) ExperimentID() string { return t.id }

// Close releases the report file.
func (t *Trainer) Close() error {
	if t.report == nil {
		return nil
	}
	return t.report.Close()
}

// TrainEpoch pairs one shuffled pass of query batches with one of neighbor
// batches and takes an optimizer step per pair.
func (t *Trainer) TrainEpoch(ctx context.Context, epoch int) (stats EpochStats, err error) {
	ctx, span := t.tracer.Start(ctx, "trainer.epoch", trace.WithAttributes(
		attribute.String("experiment.id", t.id),
		attribute.Int("epoch", epoch),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	queryBatches := t.queries.Shuffled()
	neighborBatches := t.neighbors.Shuffled()
	steps := min(len(queryBatches), len(neighborBatches))

	correctness := make([]float64, 0, steps)
	var elapsed time.Duration
	for i := range steps {
		if err := ctx.Err(); err != nil {
			return EpochStats{}, err
		}
		q, n := queryBatches[i], neighborBatches[i]

		qe := t.model.Embed(q.X)
		ne := t.model.Embed(n.X)

		start := time.Now()
		res, err := t.layer.Forward(qe, ne, dknn.LabelAgreement(q.Y, n.Y))
		elapsed += time.Since(start)
		if err != nil {
			return EpochStats{}, errors.Wrapf(err, "epoch %d step %d", epoch, i)
		}

		gq, gn := res.Backward()
		grads := t.model.Backward(q.X, gq)
		for j, g := range t.model.Backward(n.X, gn) {
			grads[j].Add(grads[j], g)
		}
		if err := t.optimizer.Step(t.model.Params(), grads); err != nil {
			return EpochStats{}, errors.Wrap(err, "optimizer step")
		}
		correctness = append(correctness, res.Loss.Correctness)
	}

	stats = EpochStats{
		Kind:         recordEpoch,
		ExperimentID: t.id,
		Epoch:        epoch,
		Steps:        steps,
	}
	if steps > 0 {
		stats.TrainCorrectness = stat.Mean(correctness, nil)
		stats.AvgStepTime = elapsed / time.Duration(steps)
	}
	log.Info().
		Int("epoch", epoch).
		Float64("train_correctness", stats.TrainCorrectness).
		Dur("avg_step_time", stats.AvgStepTime).
		Msg("Avg. train correctness of top k")
	span.SetAttributes(
		attribute.Int("steps", steps),
		attribute.Float64("train.correctness", stats.TrainCorrectness),
	)
	return stats, nil
}

// embedPool embeds the whole training split once. Exact evaluation always
// ranks by squared Euclidean distance, whatever score the layer trains with.
func (t *Trainer) embedPool() (*dknn.Pool, error) {
	return dknn.NewPool(t.model.Embed(t.train.X), t.train.Y, dknn.SquaredEuclidean)
}

// Evaluate returns the exact k-NN accuracy of ds's queries against the
// embedded training pool.
func (t *Trainer) Evaluate(ds *dataset.Dataset) (float64, error) {
	if ds.Len() == 0 {
		return 0, nil
	}
	pool, err := t.embedPool()
	if err != nil {
		return 0, errors.Wrap(err, "embed pool")
	}
	return t.evaluateAgainst(pool, ds)
}

func (t *Trainer) evaluateAgainst(pool *dknn.Pool, ds *dataset.Dataset) (float64, error) {
	loader, err := dataset.NewLoader(ds, min(t.opts.NumTestQueries, ds.Len()), t.opts.Seed)
	if err != nil {
		return 0, errors.Wrap(err, "eval loader")
	}

	var hits, total int
	for _, b := range loader.Sequential() {
		dist, err := pool.Distances(t.model.Embed(b.X))
		if err != nil {
			return 0, errors.Wrap(err, "eval distances")
		}
		preds, err := t.classifier.PredictDistanceMatrix(dist, pool.Labels())
		if err != nil {
			return 0, errors.Wrap(err, "eval predict")
		}
		for i, p := range preds {
			if p == b.Y[i] {
				hits++
			}
		}
		total += len(preds)
	}
	return float64(hits) / float64(total), nil
}

// Run trains for NumEpochs, keeping the parameters with the best validation
// accuracy, then reports validation and test accuracy with those parameters.
func (t *Trainer) Run(ctx context.Context) (_ *Summary, err error) {
	ctx, span := t.tracer.Start(ctx, "trainer.run", trace.WithAttributes(
		attribute.String("experiment.id", t.id),
		attribute.Int("epochs", t.opts.NumEpochs),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var last EpochStats
	for epoch := range t.opts.NumEpochs {
		log.Info().Int("epoch", epoch).Str("experiment_id", t.id).Msg("Beginning epoch")

		stats, err := t.TrainEpoch(ctx, epoch)
		if err != nil {
			return nil, err
		}
		if stats.ValAccuracy, err = t.Evaluate(t.valid); err != nil {
			return nil, err
		}
		log.Info().Int("epoch", epoch).Float64("val_accuracy", stats.ValAccuracy).Msg("Avg. val acc")

		if stats.ValAccuracy > t.bestAcc || t.best == nil {
			stats.Improved = true
			t.bestAcc = stats.ValAccuracy
			t.bestEpoch = epoch
			t.best = embedding.Snapshot(t.model)
			log.Info().Float64("best_val_accuracy", t.bestAcc).Msg("Saving best parameters")
		}
		stats.BestValAccuracy = t.bestAcc
		if err := t.write(stats); err != nil {
			return nil, err
		}
		last = stats
	}

	if t.best != nil {
		embedding.Restore(t.model, t.best)
	}

	pool, err := t.embedPool()
	if err != nil {
		return nil, errors.Wrap(err, "embed pool")
	}
	summary := &Summary{
		Kind:                  recordSummary,
		ExperimentID:          t.id,
		Epochs:                t.opts.NumEpochs,
		BestEpoch:             t.bestEpoch,
		FinalTrainCorrectness: last.TrainCorrectness,
	}
	// The pool and model are read-only from here on; only the leave-one-out
	// pass fills the pool's self-distance cache.
	var g errgroup.Group
	if t.valid.Len() > 0 {
		g.Go(func() (err error) {
			summary.ValAccuracy, err = t.evaluateAgainst(pool, t.valid)
			return errors.Wrap(err, "final validation")
		})
	}
	if t.test.Len() > 0 {
		g.Go(func() (err error) {
			summary.TestAccuracy, err = t.evaluateAgainst(pool, t.test)
			return errors.Wrap(err, "final test")
		})
	}
	g.Go(func() (err error) {
		summary.PoolLeaveOneOut, err = pool.LeaveOneOutAccuracy(t.classifier)
		return errors.Wrap(err, "pool leave-one-out")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().
		Float64("val_accuracy", summary.ValAccuracy).
		Float64("test_accuracy", summary.TestAccuracy).
		Float64("pool_leave_one_out", summary.PoolLeaveOneOut).
		Msg("Final evaluation with best parameters")
	return summary, t.write(summary)
}

func (t *Trainer) write(record any) error {
	if t.report == nil {
		return nil
	}
	return t.report.Write(record)
}
