package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-groups/internal/model"
)

const (
	// MaxIssueCount is the largest batch a single issuance may request.
	MaxIssueCount = 1000

	codeSuffixLength = 10
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeGenerator returns a random suffix of length n.
type CodeGenerator func(n int) string

// RandomSuffix draws n characters from [A-Z0-9]. Codes are not secrets.
func RandomSuffix(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}

// IssuanceMetrics observes bulk issuance outcomes.
type IssuanceMetrics interface {
	ObserveIssuance(created, skipped int)
}

// IssuanceService generates batches of codes for a group.
type IssuanceService struct {
	catalog  *CatalogService
	generate CodeGenerator
	metrics  IssuanceMetrics
}

// NewIssuanceService creates an IssuanceService. A nil generator uses RandomSuffix.
func NewIssuanceService(catalog *CatalogService, generate CodeGenerator, metrics IssuanceMetrics) *IssuanceService {
	if generate == nil {
		generate = RandomSuffix
	}
	return &IssuanceService{catalog: catalog, generate: generate, metrics: metrics}
}

// Issue makes count attempts to insert prefix+random codes. Each attempt is
// made once: a code that already exists goes to Skipped and is not retried,
// so a batch may come back with fewer than count codes.
func (s *IssuanceService) Issue(ctx context.Context, groupID int64, prefix string, count int, reward model.Reward, usageLimit int) (*model.IssueResult, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || count < 1 || count > MaxIssueCount || usageLimit < 1 {
		return nil, ErrInvalidRequest
	}
	if err := validateReward(reward); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}

	result := &model.IssueResult{Created: []string{}, Skipped: []string{}}
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		code := prefix + s.generate(codeSuffixLength)
		_, err := s.catalog.itemRepo.Insert(ctx, &model.NewItem{
			GroupID:    groupID,
			Code:       code,
			Reward:     reward,
			UsageLimit: usageLimit,
		})
		switch {
		case err == nil:
			result.Created = append(result.Created, code)
		case errors.Is(err, ErrDuplicateCode):
			result.Skipped = append(result.Skipped, code)
		default:
			return result, err
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveIssuance(len(result.Created), len(result.Skipped))
	}
	log.Info().
		Int64("group_id", groupID).
		Str("prefix", prefix).
		Int("requested", count).
		Int("created", len(result.Created)).
		Int("skipped", len(result.Skipped)).
		Msg("coupon batch issued")

	return result, nil
}
