// Package engine wires the Content Store, Cache, Work Queue, Worker Pool,
// Event Scanner, and Background Scheduler into one constructed Handle,
// replacing the singleton the Design Notes reject ("ApiMirrorInstance" —
// §9). The external HTTP read API is an out-of-scope collaborator (spec
// §1/§6); Handle exists so it has a plain Go contract to call without this
// package knowing anything about HTTP.
//
// Grounded on wesm-argh's cmd/main.go, which wires config, the API client,
// and the Syncer by hand in one place; generalized here from a one-shot
// call into a long-lived struct because the mirror's core runs forever
// instead of exiting after one pass.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jgwest/github-api-mirror/config"
	"github.com/jgwest/github-api-mirror/internal/cache"
	"github.com/jgwest/github-api-mirror/internal/eventscan"
	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/jgwest/github-api-mirror/internal/processedset"
	"github.com/jgwest/github-api-mirror/internal/queue"
	"github.com/jgwest/github-api-mirror/internal/scheduler"
	"github.com/jgwest/github-api-mirror/internal/store"
	"github.com/jgwest/github-api-mirror/internal/upstream"
	"github.com/jgwest/github-api-mirror/internal/worker"
	"github.com/sirupsen/logrus"
)

// quotaRetryInterval is spec §7's "sleep 60s, retry indefinitely" startup
// quota-exhaustion disposition.
const quotaRetryInterval = 60 * time.Second

// Handle is the constructed engine instance. It owns every long-lived
// component and exposes spec §6's "externally observable behaviors of the
// core" as plain methods.
type Handle struct {
	cfg    *config.Config
	up     upstream.Client
	store  *store.Store
	cache  *cache.Cache
	queue  *queue.Queue
	pool   *worker.Pool
	sched  *scheduler.Scheduler
	log    logrus.FieldLogger
	owners []model.Owner
}

// New constructs a Handle from cfg and an already-authenticated upstream
// client (ghrest.Client or ghgraphql.Client both satisfy upstream.Client).
// filter is passed through to the Worker Pool unmodified; the zero Filter
// value accepts everything.
func New(cfg *config.Config, up upstream.Client, filter worker.Filter, log logrus.FieldLogger) (*Handle, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	owners, err := buildOwners(cfg)
	if err != nil {
		return nil, err
	}

	st := store.New(cfg.DBDir, log)
	if err := st.ReconcileAgainstConfig(cfg.Organizations, cfg.Users, cfg.IndividualRepos); err != nil {
		return nil, fmt.Errorf("engine: reconciling store against configuration: %w", err)
	}

	c := cache.New(st, cache.DefaultMaxEntries, log)
	pacing := queue.PacingConfig{
		ConfiguredPause:         time.Duration(cfg.GlobalPauseMillis) * time.Millisecond,
		ConfiguredRequestsPerHr: cfg.GlobalHourlyRequestLimit,
	}
	q := queue.New(pacing, log)

	seen := processedset.New()
	scanner := eventscan.New(up, q, seen, log)
	sched := scheduler.New(owners, q, c, scanner, seen, cfg, log)
	pool := worker.New(q, c, up, filter, log)

	return &Handle{
		cfg:    cfg,
		up:     up,
		store:  st,
		cache:  c,
		queue:  q,
		pool:   pool,
		sched:  sched,
		log:    log.WithField("component", "engine"),
		owners: owners,
	}, nil
}

// Run starts the Worker Pool and Background Scheduler and blocks until ctx
// is cancelled, at which point it stops accepting new work and waits for
// in-flight workers to finish.
func (h *Handle) Run(ctx context.Context) error {
	if err := h.resolveStartupQuota(ctx); err != nil {
		return err
	}

	h.pool.Start(ctx)
	go h.sched.Run(ctx)

	<-ctx.Done()
	h.queue.StopAccepting()
	h.pool.Wait()
	return nil
}

// resolveStartupQuota implements spec §7's startup quota-exhaustion
// disposition: an initial quota probe (upstream.Client.ResolveQuota) seeds
// the Work Queue's pacing gate before the Worker Pool starts taking units
// off it; a quota-exhausted probe sleeps and retries indefinitely rather
// than failing startup.
func (h *Handle) resolveStartupQuota(ctx context.Context) error {
	for {
		q, err := h.up.ResolveQuota(ctx)
		if err != nil {
			h.log.WithError(err).Warn("could not resolve quota at startup, continuing quota-blind")
			return nil
		}
		if q.Remaining > 0 {
			h.queue.SetQuotaSnapshot(&queue.QuotaSnapshot{
				Remaining:        q.Remaining,
				SecondsToReset:   q.SecondsToReset,
				TotalHourlyLimit: q.TotalHourlyLimit,
			})
			return nil
		}
		h.log.WithField("secondsToReset", q.SecondsToReset).Warn("quota exhausted at startup, sleeping before retry")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(quotaRetryInterval):
		}
	}
}

// RecentChanges implements spec §6's "Recent changes since T" query.
func (h *Handle) RecentChanges(since time.Time) ([]model.ResourceChangeEvent, error) {
	return h.store.ReadRecentChangeEvents(since)
}

// TriggerFullScan implements spec §6's "Trigger full scan" request.
func (h *Handle) TriggerFullScan() {
	h.sched.TriggerFullScan()
}

// GetIssue implements spec §6's "Mirrored record by key" query for issues.
func (h *Handle) GetIssue(owner, repo string, number int) (*model.Issue, error) {
	return h.cache.GetIssue(owner, repo, number)
}

// GetRepository implements spec §6's "Mirrored record by key" query for
// repositories.
func (h *Handle) GetRepository(owner, name string) (*model.Repository, error) {
	return h.cache.GetRepository(owner, name)
}

// GetOrganization implements spec §6's "Mirrored record by key" query for
// organizations.
func (h *Handle) GetOrganization(name string) (*model.Organization, error) {
	return h.cache.GetOrganization(name)
}

// GetUserRepositories implements spec §6's "Mirrored record by key" query
// for a user's repository list.
func (h *Handle) GetUserRepositories(login string) (*model.UserRepositories, error) {
	return h.cache.GetUserRepositories(login)
}

// GetUser implements spec §6's "Mirrored record by key" query for users.
func (h *Handle) GetUser(login string) (*model.User, error) {
	return h.cache.GetUser(login)
}

// buildOwners turns the configured target lists into model.Owner values:
// one Organization/User owner per configured name, plus one RepoList owner
// per distinct owner among the configured individual repos (spec §6:
// "<owner>/<repo>" entries sharing an owner name are grouped together,
// since model.NewRepoListOwner takes one owner name and potentially many
// repository names).
func buildOwners(cfg *config.Config) ([]model.Owner, error) {
	var owners []model.Owner

	for _, name := range cfg.Organizations {
		o, err := model.NewOrganizationOwner(name)
		if err != nil {
			return nil, fmt.Errorf("engine: organization %q: %w", name, err)
		}
		owners = append(owners, o)
	}
	for _, name := range cfg.Users {
		o, err := model.NewUserOwner(name)
		if err != nil {
			return nil, fmt.Errorf("engine: user %q: %w", name, err)
		}
		owners = append(owners, o)
	}

	byOwner := make(map[string][]string)
	var ownerOrder []string
	for _, repo := range cfg.IndividualRepos {
		ownerName, repoName, ok := strings.Cut(repo, "/")
		if !ok {
			return nil, fmt.Errorf("engine: individual repo %q must be of the form <owner>/<repo>", repo)
		}
		if _, seen := byOwner[ownerName]; !seen {
			ownerOrder = append(ownerOrder, ownerName)
		}
		byOwner[ownerName] = append(byOwner[ownerName], repoName)
	}
	for _, ownerName := range ownerOrder {
		o, err := model.NewRepoListOwner(ownerName, byOwner[ownerName])
		if err != nil {
			return nil, fmt.Errorf("engine: individual repo owner %q: %w", ownerName, err)
		}
		owners = append(owners, o)
	}

	return owners, nil
}
