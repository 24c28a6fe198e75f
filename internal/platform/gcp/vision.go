package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/migralert/migralert-backend/internal/platform/ctxutil"
	"github.com/migralert/migralert-backend/internal/platform/envutil"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

// Verdict is the outcome of screening one photo.
type Verdict struct {
	Allowed bool
	Reasons []string
}

type PhotoScreener interface {
	Screen(ctx context.Context, img []byte) (Verdict, error)
	Close() error
}

type safeSearchScreener struct {
	log       *logger.Logger
	client    *vision.ImageAnnotatorClient
	threshold visionpb.Likelihood
	timeout   time.Duration
}

func NewSafeSearchScreener(log *logger.Logger) (PhotoScreener, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	client, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &safeSearchScreener{
		log:       log.With("service", "SafeSearchScreener"),
		client:    client,
		threshold: ParseLikelihood(envutil.String("VISION_SAFESEARCH_THRESHOLD", "LIKELY")),
		timeout:   envutil.Millis("VISION_TIMEOUT_MS", 5000),
	}, nil
}

func (s *safeSearchScreener) Screen(ctx context.Context, img []byte) (Verdict, error) {
	if len(img) == 0 {
		return Verdict{Allowed: true}, nil
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), s.timeout)
	defer cancel()

	resp, err := s.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_SAFE_SEARCH_DETECTION}},
		}},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return Verdict{Allowed: true}, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return Verdict{}, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	v := EvaluateSafeSearch(r0.SafeSearchAnnotation, s.threshold)
	if !v.Allowed {
		s.log.Info("Photo rejected by SafeSearch", "reasons", v.Reasons)
	}
	return v, nil
}

func (s *safeSearchScreener) Close() error { return s.client.Close() }

// EvaluateSafeSearch rejects photos whose adult or violence likelihood is at
// or above threshold.
func EvaluateSafeSearch(ann *visionpb.SafeSearchAnnotation, threshold visionpb.Likelihood) Verdict {
	if ann == nil {
		return Verdict{Allowed: true}
	}
	if threshold <= visionpb.Likelihood_UNKNOWN {
		threshold = visionpb.Likelihood_LIKELY
	}
	var reasons []string
	if ann.GetAdult() >= threshold {
		reasons = append(reasons, "adult")
	}
	if ann.GetViolence() >= threshold {
		reasons = append(reasons, "violence")
	}
	return Verdict{Allowed: len(reasons) == 0, Reasons: reasons}
}

func ParseLikelihood(s string) visionpb.Likelihood {
	if v, ok := visionpb.Likelihood_value[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return visionpb.Likelihood(v)
	}
	return visionpb.Likelihood_LIKELY
}

type allowAllScreener struct{}

// NewAllowAllScreener is used when screening is disabled.
func NewAllowAllScreener() PhotoScreener { return allowAllScreener{} }

func (allowAllScreener) Screen(context.Context, []byte) (Verdict, error) {
	return Verdict{Allowed: true}, nil
}

func (allowAllScreener) Close() error { return nil }
