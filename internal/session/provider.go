// Package session tracks the signed-in identity and fans out transitions.
// Identities come from HS256 JWTs minted by the external identity provider.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// subscriberBuffer is the per-subscriber transition queue length.
const subscriberBuffer = 4

// Claims is the subset of the identity provider's access token we read.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Provider implements domain.SessionProvider.
type Provider struct {
	secret []byte
	parser *jwt.Parser
	logger logger.Logger

	mu      sync.Mutex
	current domain.Identity
	subs    map[int]chan domain.Transition
	nextSub int
}

// NewProvider verifies tokens signed with secret. When audience is not
// empty the aud claim must contain it.
func NewProvider(secret, audience string, log logger.Logger) *Provider {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &Provider{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
		logger: log,
		subs:   make(map[int]chan domain.Transition),
	}
}

// Verify parses token and returns the identity it carries.
func (p *Provider) Verify(token string) (domain.Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}

	var claims Claims
	parsed, err := p.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		p.logger.Debug("rejected session token", logger.Error(err))
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}

	return domain.Identity{ID: sub, Email: claims.Email}, nil
}

// SignIn verifies token and makes its identity current. A signed_in
// transition is emitted only when the identity actually changes.
func (p *Provider) SignIn(ctx context.Context, token string) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}

	id, err := p.Verify(token)
	if err != nil {
		return domain.Identity{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.Same(id) {
		p.current = id
		return id, nil
	}
	p.current = id
	p.broadcastLocked(domain.Transition{Kind: domain.SignedIn, Identity: id})

	p.logger.Info("signed in", logger.String("user_id", id.ID))
	return id, nil
}

// SignOut clears the identity. No-op when already signed out.
func (p *Provider) SignOut() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.IsZero() {
		return
	}
	prev := p.current
	p.current = domain.Identity{}
	p.broadcastLocked(domain.Transition{Kind: domain.SignedOut})

	p.logger.Info("signed out", logger.String("user_id", prev.ID))
}

// Current returns the signed-in identity, zero when none.
func (p *Provider) Current() domain.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe returns a channel of transitions and its cancel func.
// A subscriber that falls behind loses its oldest queued transitions,
// never the most recent one.
func (p *Provider) Subscribe() (<-chan domain.Transition, func()) {
	ch := make(chan domain.Transition, subscriberBuffer)

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			close(ch)
		})
	}
}

func (p *Provider) broadcastLocked(t domain.Transition) {
	for _, ch := range p.subs {
		select {
		case ch <- t:
			continue
		default:
		}
		// Full: drop the oldest and retry once. Only this method sends.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- t:
		default:
			p.logger.Warn("dropping session transition for slow subscriber")
		}
	}
}
