// Package presence fans presence transitions out to the affected user's
// mutual matches, and only to them. Each recipient gets its own filtered
// view of who is online; non-matches learn nothing.
package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"AmoraGateway/service/match"
	"AmoraGateway/tools/security"
)

// OnlineSet answers whether an external ID currently holds a live
// registry entry. Implemented by the gateway's registry.
type OnlineSet interface {
	Online(externalID string) bool
}

// Pusher delivers a recomputed online-match list to one user's
// connection. Implemented by the gateway core.
type Pusher interface {
	PushOnlineSet(externalID string, online []string) error
}

// TransitionSink receives the bare online/offline transition for
// out-of-process consumers. Optional; errors are log-only.
type TransitionSink interface {
	PublishTransition(ctx context.Context, externalID string, online bool) error
}

type BroadcasterConf struct {
	RecipientTimeout time.Duration // per-recipient match-lookup budget
}

type Broadcaster struct {
	matches match.Lookup
	online  OnlineSet
	push    Pusher
	sink    TransitionSink // may be nil
	timeout time.Duration
	log     *zap.Logger
}

func NewBroadcaster(matches match.Lookup, online OnlineSet, push Pusher, sink TransitionSink, conf BroadcasterConf, log *zap.Logger) *Broadcaster {
	if conf.RecipientTimeout <= 0 {
		conf.RecipientTimeout = 3 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		matches: matches,
		online:  online,
		push:    push,
		sink:    sink,
		timeout: conf.RecipientTimeout,
		log:     log,
	}
}

// Announce handles one presence transition for externalID. It fetches
// the subject's match set fresh (matches change between gateway events,
// so no caching), pushes the subject its own filtered list when coming
// online, and then recomputes and pushes every online match's view.
// Each recipient is handled in its own supervised goroutine; one
// recipient's failure never aborts the rest.
//
// On an offline announce the subject's registry entries are still
// present, so the subject is excluded from recipients' lists explicitly.
func (b *Broadcaster) Announce(ctx context.Context, externalID string, online bool) {
	set, err := b.matches.Matches(ctx, externalID)
	if err != nil {
		// Degrade to no broadcast; the connection itself is unaffected.
		b.log.Warn("presence: match lookup failed, skipping broadcast",
			zap.String("user", security.MaskID(externalID)),
			zap.Bool("online", online),
			zap.Error(err))
		return
	}

	if online {
		if err := b.push.PushOnlineSet(externalID, b.filterOnline(set, "")); err != nil {
			b.log.Warn("presence: self push failed",
				zap.String("user", security.MaskID(externalID)),
				zap.Error(err))
		}
	}

	exclude := ""
	if !online {
		exclude = externalID
	}

	var wg sync.WaitGroup
	for _, m := range set {
		if !b.online.Online(m) {
			continue
		}
		wg.Add(1)
		go func(recipient string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("presence: recipient push panicked",
						zap.String("recipient", security.MaskID(recipient)),
						zap.Any("panic", r))
				}
			}()
			b.pushRecipientView(ctx, recipient, exclude)
		}(m)
	}
	wg.Wait()

	if b.sink != nil {
		if err := b.sink.PublishTransition(ctx, externalID, online); err != nil {
			b.log.Warn("presence: transition publish failed",
				zap.String("user", security.MaskID(externalID)),
				zap.Error(err))
		}
	}
}

// pushRecipientView recomputes the recipient's own filtered online list
// and delivers it. Each recipient's view differs, which is why there is
// no shared broadcast payload.
func (b *Broadcaster) pushRecipientView(ctx context.Context, recipient, exclude string) {
	lctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	set, err := b.matches.Matches(lctx, recipient)
	if err != nil {
		b.log.Warn("presence: recipient match lookup failed",
			zap.String("recipient", security.MaskID(recipient)),
			zap.Error(err))
		return
	}
	if err := b.push.PushOnlineSet(recipient, b.filterOnline(set, exclude)); err != nil {
		b.log.Warn("presence: recipient push failed",
			zap.String("recipient", security.MaskID(recipient)),
			zap.Error(err))
	}
}

// filterOnline intersects a match set with the currently registered
// users, dropping exclude (the user whose offline transition is being
// announced and whose entries are still registered during Closing).
func (b *Broadcaster) filterOnline(set []string, exclude string) []string {
	out := make([]string, 0, len(set))
	for _, id := range set {
		if id == exclude {
			continue
		}
		if b.online.Online(id) {
			out = append(out, id)
		}
	}
	return out
}
