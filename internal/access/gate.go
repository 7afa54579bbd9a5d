package access

import (
	"context"
	"time"

	"kinobot/internal/transport"
	"kinobot/pkg/logx"
)

// MembershipOracle reports a user's status in a channel.
type MembershipOracle interface {
	ChatMember(ctx context.Context, channel string, userID int64) (transport.MemberStatus, error)
}

// Decision is the gate verdict. Missing lists every unsatisfied channel in
// policy order.
type Decision struct {
	Allowed bool
	Missing []string
}

const defaultCheckTimeout = 5 * time.Second

type Gate struct {
	oracle  MembershipOracle
	log     logx.Logger
	timeout time.Duration
}

func NewGate(oracle MembershipOracle, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{oracle: oracle, log: log, timeout: defaultCheckTimeout}
}

// Check fails closed: an oracle error counts the channel as not joined and
// is not retried.
func (g *Gate) Check(ctx context.Context, userID int64, cfg Config) Decision {
	if !cfg.Enforced() {
		return Decision{Allowed: true}
	}
	var missing []string
	for _, ch := range cfg.Channels {
		if !g.joined(ctx, ch, userID) {
			missing = append(missing, ch)
		}
	}
	if len(missing) > 0 {
		return Decision{Missing: missing}
	}
	return Decision{Allowed: true}
}

func (g *Gate) joined(ctx context.Context, channel string, userID int64) bool {
	if g.oracle == nil {
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	status, err := g.oracle.ChatMember(cctx, channel, userID)
	if err != nil {
		g.log.Debug("membership check failed", logx.String("channel", channel), logx.Int64("user_id", userID), logx.Err(err))
		return false
	}
	switch status {
	case transport.MemberMember, transport.MemberAdministrator, transport.MemberCreator:
		return true
	default:
		return false
	}
}
