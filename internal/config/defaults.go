package config

const (
	defaultConfigPath                  = "~/.config/gapscan/config.toml"
	defaultTMDBBaseURL                 = "https://api.themoviedb.org/3"
	defaultTMDBLanguage                = "en-US"
	defaultTVDBBaseURL                 = "https://api4.thetvdb.com/v4"
	defaultLibrarySource               = "plex"
	defaultMoviesLibrary               = "Movies"
	defaultShowsLibrary                = "TV Shows"
	defaultCacheBackend                = "json"
	defaultCacheFlushThreshold         = 250
	defaultTTLMovieWithCollectionHours = 720
	defaultTTLMovieNoCollectionHours   = 168
	defaultTTLCollectionHours          = 720
	defaultTTLSeriesHours              = 168
	defaultTTLEpisodesContinuingHours  = 24
	defaultTTLEpisodesEndedHours       = 720
	defaultRetryInitialMillis          = 500
	defaultRetryMaxMillis              = 30000
	defaultRetryMultiplier             = 2.0
	defaultRetryMaxRetries             = 4
	defaultMinCollectionSize           = 2
	defaultMinOwned                    = 2
	defaultRecentThresholdHours        = 24
	defaultScanWorkers                 = 4
	defaultRequestTimeoutSeconds       = 15
	defaultLogFormat                   = "auto"
	defaultLogLevel                    = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		TMDB: TMDB{
			BaseURL:  defaultTMDBBaseURL,
			Language: defaultTMDBLanguage,
		},
		TVDB: TVDB{
			BaseURL: defaultTVDBBaseURL,
		},
		Library: Library{
			Source:        defaultLibrarySource,
			MoviesLibrary: defaultMoviesLibrary,
			ShowsLibrary:  defaultShowsLibrary,
		},
		Cache: Cache{
			Backend:        defaultCacheBackend,
			FlushThreshold: defaultCacheFlushThreshold,
		},
		TTL: TTL{
			MovieWithCollectionHours:    defaultTTLMovieWithCollectionHours,
			MovieWithoutCollectionHours: defaultTTLMovieNoCollectionHours,
			CollectionHours:             defaultTTLCollectionHours,
			SeriesHours:                 defaultTTLSeriesHours,
			EpisodesContinuingHours:     defaultTTLEpisodesContinuingHours,
			EpisodesEndedHours:          defaultTTLEpisodesEndedHours,
		},
		Retry: Retry{
			InitialMillis: defaultRetryInitialMillis,
			MaxMillis:     defaultRetryMaxMillis,
			Multiplier:    defaultRetryMultiplier,
			MaxRetries:    defaultRetryMaxRetries,
		},
		Movies: Movies{
			MinCollectionSize: defaultMinCollectionSize,
			MinOwned:          defaultMinOwned,
		},
		Episodes: Episodes{
			RecentThresholdHours: defaultRecentThresholdHours,
		},
		Scan: Scan{
			Workers:               defaultScanWorkers,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
