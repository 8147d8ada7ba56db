package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Overland-East-Bay/class-booking-api/internal/ports/out/idempotency"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	routeReserve         = "/bookings"
)

var errIdempotencyKeyReuse = errors.New("idempotency key reused with a different payload")

type idemState struct {
	enabled bool
	fp      idempotency.Fingerprint
	found   bool
	rec     idempotency.Record
}

// beginIdempotent checks a POST against earlier requests carrying the same key.
// The key's metadata record pins the first body hash; the response record is keyed by it.
func (s *Server) beginIdempotent(r *http.Request, route string, body any) (idemState, error) {
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if s.Idem == nil || key == "" {
		return idemState{}, nil
	}
	bodyHash, err := hashBody(body)
	if err != nil {
		return idemState{}, err
	}

	metaFP := idempotency.Fingerprint{
		Key:    idempotency.Key(key),
		Method: http.MethodPost,
		Route:  route,
	}
	ctx := r.Context()
	meta, ok, err := s.Idem.Get(ctx, metaFP)
	if err != nil {
		return idemState{}, err
	}
	if ok {
		if string(meta.Body) != bodyHash {
			return idemState{}, errIdempotencyKeyReuse
		}
	} else if err := s.Idem.Put(ctx, metaFP, idempotency.Record{
		ContentType: "text/plain",
		Body:        []byte(bodyHash),
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return idemState{}, err
	}

	st := idemState{enabled: true, fp: metaFP}
	st.fp.BodyHash = bodyHash
	rec, ok, err := s.Idem.Get(ctx, st.fp)
	if err != nil {
		return idemState{}, err
	}
	if ok && rec.StatusCode != 0 && strings.HasPrefix(rec.ContentType, "application/json") {
		st.found = true
		st.rec = rec
	}
	return st, nil
}

// finishIdempotent stores a successful response for replay. Storage failures are logged, not returned.
func (s *Server) finishIdempotent(r *http.Request, st idemState, status int, resp any) {
	if !st.enabled {
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.Idem.Put(r.Context(), st.fp, idempotency.Record{
		StatusCode:  status,
		ContentType: "application/json",
		Body:        append(b, '\n'),
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		s.log.WithError(err).Warn("idempotency record not stored")
	}
}

func hashBody(body any) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
