package room

import (
	"context"
	"crypto/rand"
	"math/big"
	"strconv"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/collab-room-system/internal/apperr"
)

const (
	codeMin = 1000
	codeMax = 9999
)

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// withCode calls create with the requested code, or with fresh random codes
// until one is accepted. Uniqueness is decided by the active_code index, so
// only a Conflict on a generated code is retried.
func (s *Service) withCode(ctx context.Context, requested string, create func(code string) error) error {
	if requested != "" {
		return create(requested)
	}
	for i := 0; i < s.codeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return errors.Wrap(err, "failed to generate room code")
		}
		err = create(code)
		if !errors.Is(err, apperr.ErrConflict) {
			return err
		}
		zlog.Debug().Str("code", code).Msg("room code taken, drawing another")
	}
	return apperr.Conflict("could not allocate a free room code after %d attempts", s.codeAttempts)
}
