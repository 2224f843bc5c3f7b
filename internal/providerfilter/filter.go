package providerfilter

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"filterms/internal/config"
	"filterms/internal/logging"
	"filterms/internal/wire"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonAllowed         Reason = "allowed"
	ReasonBlacklisted     Reason = "blacklisted"
	ReasonNotWhitelisted  Reason = "not_whitelisted"
	ReasonMissingFeatures Reason = "missing_features"
	ReasonUnknown         Reason = "unknown_provider"
)

// Decision is the filter's verdict on one provider.
type Decision struct {
	Provider ProviderInfo
	Allowed  bool
	Reason   Reason
}

// Payload turns the decision into a tagged signal.
func (d Decision) Payload() wire.Payload {
	verdict := "reject"
	if d.Allowed {
		verdict = "accept"
	}
	return wire.Tagged(map[string]any{
		"signal":   verdict,
		"provider": d.Provider.String(),
		"reason":   string(d.Reason),
	})
}

// Options configures a Filter.
type Options struct {
	Whitelist []string
	Blacklist []string
	Features  []string
	// Verbose logs every rejection at info level instead of debug.
	Verbose bool
	Logger  *slog.Logger
}

// Filter accumulates the providers seen in offers and answers whether a
// provider id may be accepted. It is safe for concurrent use.
type Filter struct {
	whitelist []string
	blacklist []string
	features  []string
	verbose   bool
	logger    *slog.Logger

	mu          sync.Mutex
	seen        map[string]ProviderInfo
	blacklisted map[string]struct{}
	whitelisted map[string]struct{}
	rejected    map[string]struct{}
}

// New returns an empty Filter.
func New(opts Options) *Filter {
	f := &Filter{
		whitelist:   compact(opts.Whitelist),
		blacklist:   compact(opts.Blacklist),
		features:    compact(opts.Features),
		verbose:     opts.Verbose,
		logger:      logging.NewComponentLogger(opts.Logger, "providerfilter"),
		seen:        make(map[string]ProviderInfo),
		blacklisted: make(map[string]struct{}),
		whitelisted: make(map[string]struct{}),
		rejected:    make(map[string]struct{}),
	}
	f.logger.Debug("provider filter configured",
		logging.Any("whitelist", f.whitelist),
		logging.Any("blacklist", f.blacklist),
		logging.Any("features", f.features),
	)
	if !f.verbose {
		f.logger.Info("rejections are logged at debug level; set FILTERMSVERBOSE=1 to see them")
	}
	return f
}

// NewFromConfig builds a Filter from the [filter] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Filter {
	if cfg == nil {
		return New(Options{Logger: logger})
	}
	return New(Options{
		Whitelist: cfg.Filter.Whitelist,
		Blacklist: cfg.Filter.Blacklist,
		Features:  cfg.Filter.Features,
		Verbose:   cfg.Filter.Verbose,
		Logger:    logger,
	})
}

// Observe records a provider from an offer and classifies it against the
// blacklist first, then the whitelist.
func (f *Filter) Observe(p ProviderInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[p.ID] = p
	switch {
	case matchesAny(p, f.blacklist):
		f.blacklisted[p.ID] = struct{}{}
	case matchesAny(p, f.whitelist):
		f.whitelisted[p.ID] = struct{}{}
	}
}

// Allowed decides on a previously observed provider id.
func (f *Filter) Allowed(providerID string) Decision {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.seen[providerID]
	if !ok {
		f.logger.Warn("decision requested for unobserved provider",
			logging.Event("provider_unknown"),
			logging.String("provider_id", providerID),
		)
		return Decision{Provider: ProviderInfo{ID: providerID}, Reason: ReasonUnknown}
	}

	d := Decision{Provider: p, Allowed: true, Reason: ReasonAllowed}
	_, onBlacklist := f.blacklisted[providerID]
	_, onWhitelist := f.whitelisted[providerID]
	switch {
	case onBlacklist:
		d.Allowed, d.Reason = false, ReasonBlacklisted
	case len(f.whitelist) > 0 && !onWhitelist:
		d.Allowed, d.Reason = false, ReasonNotWhitelisted
	case !p.HasFeatures(f.features):
		d.Allowed, d.Reason = false, ReasonMissingFeatures
	}

	if !d.Allowed {
		f.rejected[providerID] = struct{}{}
		level := slog.LevelDebug
		if f.verbose {
			level = slog.LevelInfo
		}
		f.logger.Log(context.Background(), level, "provider rejected",
			logging.Event("provider_rejected"),
			logging.String("provider", p.String()),
			logging.String("reason", string(d.Reason)),
		)
	}
	return d
}

// Evaluate observes p and decides on it.
func (f *Filter) Evaluate(p ProviderInfo) Decision {
	f.Observe(p)
	return f.Allowed(p.ID)
}

// Rejected returns the ids of every provider rejected so far, sorted.
func (f *Filter) Rejected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.rejected))
	for id := range f.rejected {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func matchesAny(p ProviderInfo, candidates []string) bool {
	return slices.ContainsFunc(candidates, p.FuzzyMatches)
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = normalize(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
