package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"semwatch/models"
	"semwatch/modules/watcher"
)

type Config struct {
	Roots           []string `yaml:"roots"`
	Recursive       bool     `yaml:"recursive"`
	IgnorePatterns  []string `yaml:"ignore_patterns"`
	IgnoreHidden    bool     `yaml:"ignore_hidden"`
	DebounceMs      int64    `yaml:"debounce_ms"`
	RenameTimeoutMs int64    `yaml:"rename_timeout_ms"`
	IgnoreInitial   bool     `yaml:"ignore_initial"`
	Digest          bool     `yaml:"digest"`
	Listen          string   `yaml:"listen"`
}

// Agent runs one watch session over the configured roots, logs every
// semantic event and streams it to websocket subscribers.
type Agent struct {
	conf   Config
	w      *watcher.Watcher
	hub    *Hub
	server *http.Server
}

func New(config Config) *Agent {
	return &Agent{
		conf: config,
	}
}

// streamEvent is the wire form of one reported event.
type streamEvent struct {
	Kind     string `json:"kind"`
	Path     string `json:"path"`
	OldPath  string `json:"old_path,omitempty"`
	Digest   string `json:"digest,omitempty"`
	IssuedAt int64  `json:"issued_at"`
}

// Run binds the configured roots and reports events until Stop is
// called.
func (a *Agent) Run() error {
	if len(a.conf.Roots) == 0 {
		return errors.New("no roots configured")
	}

	w, err := watcher.New(watcher.Options{
		DebounceWindow: time.Duration(a.conf.DebounceMs) * time.Millisecond,
		RenameTimeout:  time.Duration(a.conf.RenameTimeoutMs) * time.Millisecond,
		Recursive:      a.conf.Recursive,
		IgnoreInitial:  a.conf.IgnoreInitial,
		Ignore:         buildIgnore(a.conf.IgnorePatterns, a.conf.IgnoreHidden),
		Logger:         &log.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	a.w = w

	if err := w.Add(context.Background(), a.conf.Roots...); err != nil {
		return fmt.Errorf("failed to watch roots: %w", err)
	}
	log.Info().Msgf("session %s watching %d roots", w.ID, len(a.conf.Roots))

	if a.conf.Listen != "" {
		a.hub = NewHub(w.ID)

		mux := http.NewServeMux()
		mux.Handle("/events", a.hub)
		a.server = &http.Server{Addr: a.conf.Listen, Handler: mux}

		go func() {
			err := a.server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Caller().Err(err).Msg("event stream server failed")
			}
		}()
		log.Info().Msgf("streaming events on %s", a.conf.Listen)
	}

	for {
		select {
		case event, ok := <-w.Events():
			if !ok {
				return nil
			}
			a.report(event)

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			log.Warn().Caller().Err(err).Msg("bind diagnostic")
		}
	}
}

// report logs one event and broadcasts it to subscribers, with an
// optional content digest on file creations, modifications and renames.
// The digest annotates the report only; classification never reads
// content.
func (a *Agent) report(event watcher.Event) {
	evt := streamEvent{
		Kind:     string(event.Kind),
		Path:     event.Path,
		OldPath:  event.OldPath,
		IssuedAt: time.Now().Unix(),
	}

	if a.conf.Digest && digestable(event.Kind) {
		digest, err := models.Digest(event.Path)
		if err != nil {
			log.Warn().Caller().Err(err).Msgf("failed to digest %s", event.Path)
		} else {
			evt.Digest = digest
		}
	}

	logEvent := log.Info().
		Str("kind", evt.Kind).
		Str("path", evt.Path)
	if evt.OldPath != "" {
		logEvent = logEvent.Str("old_path", evt.OldPath)
	}
	if evt.Digest != "" {
		logEvent = logEvent.Str("digest", evt.Digest)
	}
	logEvent.Msg("fs event")

	if a.hub != nil {
		a.hub.Broadcast(evt)
	}
}

func digestable(kind watcher.Kind) bool {
	switch kind {
	case watcher.KindCreatedFile, watcher.KindModifiedFile, watcher.KindRenamedFile:
		return true
	}
	return false
}

// Stop tears the session down; Run returns once the event channels
// drain.
func (a *Agent) Stop() error {
	log.Info().Msg("stopping agent")

	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.server.Shutdown(ctx))
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.w != nil {
		errs = append(errs, a.w.Close())
	}

	return errors.Join(errs...)
}
