package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/MrWong99/cryguard/internal/decision"
	"github.com/MrWong99/cryguard/internal/observe"
	"github.com/MrWong99/cryguard/pkg/audio"
	"github.com/MrWong99/cryguard/pkg/provider/scorer"
)

// Classification is the verdict for one clip, as returned by POST /classify.
type Classification struct {
	Decision     string  `json:"decision"`
	PrimaryScore float64 `json:"primary_score"`
	BabyScore    float64 `json:"baby_score"`
	CatScore     float64 `json:"cat_score"`
	VerifierUsed bool    `json:"verifier_used"`
}

const (
	verdictBaby  = "baby"
	verdictOther = "cat_or_other"
)

// Classification errors identify which stage failed.
var (
	ErrPrimaryFailed  = errors.New("primary scorer failed")
	ErrVerifierFailed = errors.New("verifier failed")
)

// Classify scores samples with primary and, when verifier is non-nil, takes
// the baby and cat scores from the verifier instead. Scores are clamped to
// [0, 1] and rounded to four decimals.
func Classify(ctx context.Context, primary, verifier scorer.Provider, samples []float32, sampleRate int, th decision.Thresholds) (_ Classification, err error) {
	ctx, span := observe.StartSpan(ctx, "classify")
	defer func() { observe.EndSpan(span, err) }()

	res, err := primary.Score(ctx, samples, sampleRate)
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %s: %w", ErrPrimaryFailed, primary.Name(), err)
	}
	final := res.Clamp()

	verifierUsed := false
	if verifier != nil {
		v, err := verifier.Score(ctx, samples, sampleRate)
		if err != nil {
			return Classification{}, fmt.Errorf("%w: %s: %w", ErrVerifierFailed, verifier.Name(), err)
		}
		v = v.Clamp()
		final = scorer.DetectionResult{Primary: final.Primary, Baby: v.Baby, Cat: v.Cat}
		verifierUsed = true
	}

	verdict := verdictOther
	if decision.Passes(final, th) {
		verdict = verdictBaby
	}
	rounded := final.Round(4)
	return Classification{
		Decision:     verdict,
		PrimaryScore: rounded.Primary,
		BabyScore:    rounded.Baby,
		CatScore:     rounded.Cat,
		VerifierUsed: verifierUsed,
	}, nil
}

// handleClassify scores one uploaded WAV clip. The clip is sent either as the
// raw request body or as the "file" field of a multipart form.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	body, closeBody, err := uploadBody(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	defer closeBody()

	samples, rate, err := audio.ReadWAV(body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	samples = audio.Resample(samples, rate, s.cfg.SampleRate)

	res, err := Classify(r.Context(), s.primary, s.verifier, samples, s.cfg.SampleRate, s.cfg.Thresholds)
	if err != nil {
		slog.Warn("httpapi: classification failed", "err", err)
		msg := ErrPrimaryFailed.Error()
		if errors.Is(err, ErrVerifierFailed) {
			msg = ErrVerifierFailed.Error()
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": msg})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// uploadBody returns the WAV stream of r and a func releasing it.
func uploadBody(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return r.Body, func() {}, nil
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.New("multipart upload requires a \"file\" field")
	}
	return f, func() { f.Close() }, nil
}
