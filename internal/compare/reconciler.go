package compare

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sink consumes the change lists of a successful reconciliation
type Sink interface {
	BuildCompare(ctx context.Context, result *Result) error
}

type Option func(*Reconciler)

// WithResourceTree overrides the filesystem lookup used to resolve identities
func WithResourceTree(tree ResourceTree) Option {
	return func(r *Reconciler) {
		r.tree = tree
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// Reconciler computes the local and remote change lists of a resource
type Reconciler struct {
	connector Connector
	tree      ResourceTree
	logger    *slog.Logger
}

func NewReconciler(connector Connector, opts ...Option) *Reconciler {
	r := &Reconciler{
		connector: connector,
		tree:      FSTree{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Reconcile runs one reconciliation. A single backend connection is held for
// the whole run and closed before returning. Cancellation yields an error
// matching context.Canceled and no result.
func (r *Reconciler) Reconcile(ctx context.Context, req *Request) (*Result, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	log := r.logger.With("run", uuid.NewString(), "path", req.Resource.Path)
	track := &tracker{progress: req.Progress}
	tStart := time.Now()

	if err := track.step(ctx, "connect", 0); err != nil {
		return nil, err
	}
	conn, err := r.connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect backend: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Warn("backend close", "error", err)
		}
	}()

	if err := track.step(ctx, "ancestor", 0.05); err != nil {
		return nil, err
	}
	ancestor, err := ResolveAncestor(ctx, conn, &req.Resource)
	if err != nil {
		return nil, err
	}

	if !ancestor.Valid() {
		log.Debug("resource not in repository")
		if err := track.step(ctx, "done", 1); err != nil {
			return nil, err
		}
		return unversionedResult(&req.Resource), nil
	}

	strategy := SelectStrategy(conn.APILevel(), req.Target.Revision)
	log.Debug("compare start", "strategy", strategy, "ancestor", ancestor, "target", req.Target)

	var res *Result
	switch strategy {
	case StrategyRevisionDiff:
		s := &revisionDiff{conn: conn, req: req, ancestor: ancestor, tree: r.tree, track: track, log: log}
		res, err = s.run(ctx)
	default:
		s := &workingDiff{conn: conn, req: req, ancestor: ancestor, tree: r.tree, track: track, log: log}
		res, err = s.run(ctx)
	}
	if err != nil {
		if isCanceled(err) {
			log.Debug("compare canceled", "error", err)
		}
		return nil, err
	}

	if err := track.step(ctx, "done", 1); err != nil {
		return nil, err
	}

	log.Info("compare",
		"strategy", strategy,
		"local", len(res.Local),
		"remote", len(res.Remote),
		"revisions", res.Revisions,
		"tsTotal", time.Since(tStart),
	)
	return res, nil
}

// Compare reconciles req and hands the result to sink. The sink is not
// invoked when reconciliation fails or is canceled.
func (r *Reconciler) Compare(ctx context.Context, req *Request, sink Sink) error {
	res, err := r.Reconcile(ctx, req)
	if err != nil {
		return err
	}
	return sink.BuildCompare(ctx, res)
}

// unversionedResult is the single synthetic change of a resource that does not
// exist in the repository
func unversionedResult(res *Resource) *Result {
	return &Result{
		Local: []*ChangeEntry{{
			Identity: Identity{Path: res.Path, Kind: res.Kind},
			NextPath: res.Path,
			NodeKind: res.Kind,
			TextKind: ChangeUnversioned,
			PropKind: ChangeNone,
		}},
	}
}
