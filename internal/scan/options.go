package scan

import (
	"time"

	"gapscan/internal/catalog/retry"
	"gapscan/internal/config"
	"gapscan/internal/gaps"
)

func hours(n int) time.Duration { return time.Duration(n) * time.Hour }

// TTLPolicy converts the [ttl] section.
func TTLPolicy(cfg *config.Config) gaps.TTLPolicy {
	return gaps.TTLPolicy{
		MovieWithCollection:    hours(cfg.TTL.MovieWithCollectionHours),
		MovieWithoutCollection: hours(cfg.TTL.MovieWithoutCollectionHours),
		Collection:             hours(cfg.TTL.CollectionHours),
		Series:                 hours(cfg.TTL.SeriesHours),
		EpisodesContinuing:     hours(cfg.TTL.EpisodesContinuingHours),
		EpisodesEnded:          hours(cfg.TTL.EpisodesEndedHours),
	}
}

// RetryPolicy converts the [retry] section.
func RetryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		Initial:    time.Duration(cfg.Retry.InitialMillis) * time.Millisecond,
		Max:        time.Duration(cfg.Retry.MaxMillis) * time.Millisecond,
		Multiplier: cfg.Retry.Multiplier,
		MaxRetries: cfg.Retry.MaxRetries,
	}
}

// MovieOptions builds reconciler options from config and request overrides.
func MovieOptions(cfg *config.Config, req Request) gaps.MovieOptions {
	return gaps.MovieOptions{
		AsOf:                    req.AsOf,
		IncludeFuture:           cfg.Movies.IncludeFuture || req.IncludeFuture,
		MinCollectionSize:       cfg.Movies.MinCollectionSize,
		MinOwned:                cfg.Movies.MinOwned,
		ExcludedCollectionIDs:   cfg.Movies.ExcludedCollectionIDs,
		ExcludedCollectionNames: cfg.Movies.ExcludedCollections,
		TTL:                     TTLPolicy(cfg),
		Workers:                 cfg.Scan.Workers,
	}
}

// EpisodeOptions builds reconciler options from config and request overrides.
func EpisodeOptions(cfg *config.Config, req Request) gaps.EpisodeOptions {
	return gaps.EpisodeOptions{
		AsOf:              req.AsOf,
		IncludeFuture:     cfg.Episodes.IncludeFuture || req.IncludeFuture,
		IncludeSpecials:   cfg.Episodes.IncludeSpecials || req.IncludeSpecials,
		RecentThreshold:   hours(cfg.Episodes.RecentThresholdHours),
		ExcludedShowIDs:   cfg.Episodes.ExcludedShowIDs,
		ExcludedShowNames: cfg.Episodes.ExcludedShows,
		TTL:               TTLPolicy(cfg),
		Workers:           cfg.Scan.Workers,
	}
}
