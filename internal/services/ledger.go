package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"devnewz/internal/logger"
	"devnewz/internal/metrics"
	"devnewz/internal/models"
	"devnewz/internal/repository"

	"github.com/rs/zerolog"
)

// VoteState is a user's standing on one target.
type VoteState string

const (
	StateNone      VoteState = ""
	StateUpvoted   VoteState = VoteState(models.VoteUp)
	StateDownvoted VoteState = VoteState(models.VoteDown)
)

// MarshalJSON renders "upvote", "downvote" or null.
func (s VoteState) MarshalJSON() ([]byte, error) {
	if s == StateNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s *VoteState) UnmarshalJSON(b []byte) error {
	var v *string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v == nil {
		*s = StateNone
		return nil
	}
	*s = VoteState(*v)
	return nil
}

func (s VoteState) label() string {
	if s == StateNone {
		return "none"
	}
	return string(s)
}

type KarmaPolicy string

const (
	// KarmaBestEffort commits the vote first and then applies each karma
	// delta on its own; a failed delta is logged and counted, never returned.
	KarmaBestEffort KarmaPolicy = "best_effort"
	// KarmaAtomic applies the vote change and every delta in one transaction.
	KarmaAtomic KarmaPolicy = "atomic"
)

type Target struct {
	Kind models.TargetKind
	ID   uint
}

type KarmaDelta struct {
	Amount int
	Reason string
}

type VoteResult struct {
	NewState  VoteState `json:"userVote"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
}

type karmaTable struct {
	up, down         int
	upNote, downNote string
}

var (
	receivedKarma = map[models.TargetKind]karmaTable{
		models.TargetPost:    {KarmaReceivePostUpvote, KarmaReceivePostDownvote, "post upvote", "post downvote"},
		models.TargetComment: {KarmaReceiveCommentUpvote, KarmaReceiveCommentDownvote, "comment upvote", "comment downvote"},
	}
	castKarma = map[models.TargetKind]karmaTable{
		models.TargetPost:    {KarmaPostUpvote, KarmaPostDownvote, "cast post upvote", "cast post downvote"},
		models.TargetComment: {KarmaCommentUpvote, KarmaCommentDownvote, "cast comment upvote", "cast comment downvote"},
	}
)

// Transition is the vote state machine. Repeating the current vote withdraws
// it, voting the other way switches sides. Deltas are what the target owner
// receives: the reversal of the old state followed by the new one.
func Transition(current VoteState, req models.VoteType, kind models.TargetKind) (VoteState, []KarmaDelta) {
	next := VoteState(req)
	if current == next {
		next = StateNone
	}
	return next, deltas(current, next, receivedKarma[kind])
}

func deltas(current, next VoteState, t karmaTable) []KarmaDelta {
	var out []KarmaDelta
	switch current {
	case StateUpvoted:
		out = append(out, KarmaDelta{-t.up, t.upNote + " withdrawn"})
	case StateDownvoted:
		out = append(out, KarmaDelta{-t.down, t.downNote + " withdrawn"})
	}
	switch next {
	case StateUpvoted:
		out = append(out, KarmaDelta{t.up, t.upNote})
	case StateDownvoted:
		out = append(out, KarmaDelta{t.down, t.downNote})
	}
	return out
}

// PostVoteListener is told after a post's vote tally changed.
type PostVoteListener interface {
	PostVoted(ctx context.Context, postID uint)
}

type LedgerOptions struct {
	Policy      KarmaPolicy
	ChargeVoter bool
}

// VoteLedger keeps one vote per (user, target) and drives karma.
type VoteLedger struct {
	store       repository.Store
	karma       *KarmaAccount
	policy      KarmaPolicy
	chargeVoter bool
	listener    PostVoteListener
	log         zerolog.Logger
}

const maxVoteAttempts = 3

var errVoteRace = errors.New("vote state changed concurrently")

func NewVoteLedger(store repository.Store, karma *KarmaAccount, opts LedgerOptions) *VoteLedger {
	if opts.Policy == "" {
		opts.Policy = KarmaBestEffort
	}
	return &VoteLedger{
		store:       store,
		karma:       karma,
		policy:      opts.Policy,
		chargeVoter: opts.ChargeVoter,
		log:         logger.WithComponent("ledger"),
	}
}

func (l *VoteLedger) SetPostVoteListener(listener PostVoteListener) {
	l.listener = listener
}

// CastVote applies the actor's vote request to the target.
func (l *VoteLedger) CastVote(ctx context.Context, actorID uint, target Target, req models.VoteType) (VoteResult, error) {
	result, err := l.castVote(ctx, actorID, target, req)

	outcome := result.NewState.label()
	switch {
	case errors.Is(err, ErrInsufficientKarma):
		outcome = "insufficient_karma"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	metrics.VotesTotal.WithLabelValues(string(target.Kind), string(req), outcome).Inc()
	return result, err
}

func (l *VoteLedger) castVote(ctx context.Context, actorID uint, target Target, req models.VoteType) (VoteResult, error) {
	if actorID == 0 {
		return VoteResult{}, ErrUnauthenticated
	}
	if !target.Kind.Valid() {
		return VoteResult{}, invalid("targetKind", "must be post or comment")
	}
	if !req.Valid() {
		return VoteResult{}, invalid("voteType", "must be upvote or downvote")
	}
	if target.ID == 0 {
		return VoteResult{}, invalid("targetId", "is required")
	}

	// a token whose user row is gone is treated as anonymous
	canDownvote, err := l.karma.CanDownvote(ctx, actorID)
	if errors.Is(err, ErrNotFound) {
		return VoteResult{}, ErrUnauthenticated
	}
	if err != nil {
		return VoteResult{}, err
	}
	if req == models.VoteDown && !canDownvote {
		return VoteResult{}, ErrInsufficientKarma
	}

	ownerID, err := l.ownerOf(ctx, l.store, target)
	if err != nil {
		return VoteResult{}, err
	}

	var next VoteState
	switch l.policy {
	case KarmaAtomic:
		err = l.store.Transaction(ctx, func(tx repository.Store) error {
			n, changes, terr := l.transition(ctx, tx, actorID, ownerID, target, req)
			if terr != nil {
				return terr
			}
			next = n
			karma := l.karma.withStore(tx)
			for _, c := range changes {
				if err := karma.ApplyDelta(ctx, c.userID, c.Amount, c.Reason); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return VoteResult{}, fmt.Errorf("cast vote: %w", err)
		}
	default:
		var changes []karmaChange
		next, changes, err = l.transition(ctx, l.store, actorID, ownerID, target, req)
		if err != nil {
			return VoteResult{}, fmt.Errorf("cast vote: %w", err)
		}
		for _, c := range changes {
			if err := l.karma.ApplyDelta(ctx, c.userID, c.Amount, c.Reason); err != nil {
				l.log.Error().Err(err).
					Uint("user_id", c.userID).
					Int("delta", c.Amount).
					Str("reason", c.Reason).
					Msg("karma update failed, vote kept")
			}
		}
	}

	if target.Kind == models.TargetPost && l.listener != nil {
		l.listener.PostVoted(ctx, target.ID)
	}

	counts, err := l.store.Votes().Counts(ctx, target.Kind, []uint{target.ID})
	if err != nil {
		return VoteResult{NewState: next}, fmt.Errorf("read vote counts: %w", err)
	}
	c := counts[target.ID]
	return VoteResult{NewState: next, Upvotes: c.Upvotes, Downvotes: c.Downvotes}, nil
}

type karmaChange struct {
	userID uint
	KarmaDelta
}

// transition reads the current state and writes the next one with a
// compare-and-set, retrying when another request moved the row first.
func (l *VoteLedger) transition(ctx context.Context, s repository.Store, actorID, ownerID uint, target Target, req models.VoteType) (VoteState, []karmaChange, error) {
	for attempt := 0; attempt < maxVoteAttempts; attempt++ {
		current, err := s.Votes().Get(ctx, actorID, target.Kind, target.ID)
		if err != nil {
			return StateNone, nil, err
		}
		next, received := Transition(VoteState(current), req, target.Kind)

		ok, err := s.Votes().CompareAndSet(ctx, actorID, target.Kind, target.ID, current, models.VoteType(next))
		if err != nil {
			return StateNone, nil, err
		}
		if !ok {
			continue
		}

		// 自己给自己投票：记录票，但不产生 karma
		if actorID == ownerID {
			metrics.KarmaUpdatesTotal.WithLabelValues("skipped").Inc()
			return next, nil, nil
		}

		changes := make([]karmaChange, 0, 4)
		for _, d := range received {
			changes = append(changes, karmaChange{ownerID, d})
		}
		if l.chargeVoter {
			for _, d := range deltas(VoteState(current), next, castKarma[target.Kind]) {
				changes = append(changes, karmaChange{actorID, d})
			}
		}
		return next, changes, nil
	}
	return StateNone, nil, errVoteRace
}

func (l *VoteLedger) ownerOf(ctx context.Context, s repository.Store, target Target) (uint, error) {
	switch target.Kind {
	case models.TargetPost:
		p, err := s.Posts().Get(ctx, target.ID)
		if err != nil {
			return 0, notFound(err, fmt.Errorf("post %d: %w", target.ID, ErrNotFound))
		}
		return p.UserID, nil
	default:
		c, err := s.Comments().Get(ctx, target.ID)
		if err != nil {
			return 0, notFound(err, fmt.Errorf("comment %d: %w", target.ID, ErrNotFound))
		}
		return c.UserID, nil
	}
}

// GetUserVoteState is StateNone for anonymous viewers.
func (l *VoteLedger) GetUserVoteState(ctx context.Context, actorID uint, target Target) (VoteState, error) {
	if actorID == 0 {
		return StateNone, nil
	}
	vt, err := l.store.Votes().Get(ctx, actorID, target.Kind, target.ID)
	return VoteState(vt), err
}

// AnnotateStates returns the viewer's state for each id that has a vote.
func (l *VoteLedger) AnnotateStates(ctx context.Context, actorID uint, kind models.TargetKind, ids []uint) (map[uint]VoteState, error) {
	out := make(map[uint]VoteState, len(ids))
	if actorID == 0 || len(ids) == 0 {
		return out, nil
	}
	states, err := l.store.Votes().States(ctx, actorID, kind, ids)
	if err != nil {
		return nil, err
	}
	for id, vt := range states {
		out[id] = VoteState(vt)
	}
	return out, nil
}
