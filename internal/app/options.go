package service

import (
	"github.com/okian/syncgaze/internal/adapters/estimator/mqttfeed"
	"github.com/okian/syncgaze/internal/adapters/mq/worker"
	"github.com/okian/syncgaze/internal/adapters/repository"
	"github.com/okian/syncgaze/internal/config"
	"github.com/okian/syncgaze/internal/domain/session"
	"github.com/okian/syncgaze/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults come from config.New.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore uses an already opened store instead of opening cfg.DBPath. The
// service does not close it.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithUploader replaces the collector client built from the configuration.
func WithUploader(u worker.Uploader) Option {
	return func(s *Service) {
		if u != nil {
			s.uploader = u
		}
	}
}

// WithMQTT enables the mqtt estimator kind.
func WithMQTT(b *mqttfeed.Broker) Option {
	return func(s *Service) {
		if b != nil {
			s.mqtt = b
		}
	}
}

// WithEstimatorFactory replaces how estimators are built for new sessions.
func WithEstimatorFactory(f EstimatorFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.factory = f
		}
	}
}

// WithSessionOptions appends options applied to every new session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Service) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
