package gcp

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/migralert/migralert-backend/internal/platform/logger"
)

func TestResolveObjectStoragePublicBaseURL(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")
	base, source, err := resolveObjectStoragePublicBaseURL(ObjectStorageConfig{Mode: ObjectStorageModeGCS})
	if err != nil || base != "" || source != "gcs_default" {
		t.Fatalf("gcs default: base=%q source=%q err=%v", base, source, err)
	}

	base, source, err = resolveObjectStoragePublicBaseURL(ObjectStorageConfig{
		Mode:         ObjectStorageModeGCSEmulator,
		EmulatorHost: "http://fake-gcs:4443/",
	})
	if err != nil || base != "http://fake-gcs:4443" || source != "storage_emulator_host" {
		t.Fatalf("emulator fallback: base=%q source=%q err=%v", base, source, err)
	}

	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "localhost:4443")
	if _, _, err := resolveObjectStoragePublicBaseURL(ObjectStorageConfig{Mode: ObjectStorageModeGCS}); err == nil {
		t.Fatalf("invalid base url: expected error")
	}
}

func TestGetPublicURL(t *testing.T) {
	cases := []struct {
		name string
		bs   *bucketService
		key  string
		want string
	}{
		{
			name: "gcs default",
			bs:   &bucketService{reportBucket: bucketConfig{name: "photos"}},
			key:  "reports/a.jpg",
			want: "https://storage.googleapis.com/photos/reports/a.jpg",
		},
		{
			name: "cdn domain",
			bs:   &bucketService{reportBucket: bucketConfig{name: "photos", cdnDomain: "cdn.example.com"}},
			key:  "/reports/a.jpg",
			want: "https://cdn.example.com/reports/a.jpg",
		},
		{
			name: "public base url",
			bs:   &bucketService{publicBaseURL: "http://localhost:4443", reportBucket: bucketConfig{name: "photos"}},
			key:  "reports/a.jpg",
			want: "http://localhost:4443/photos/reports/a.jpg",
		},
		{
			name: "emulator media endpoint",
			bs: &bucketService{
				storageMode:  ObjectStorageModeGCSEmulator,
				emulatorHost: "http://fake-gcs:4443",
				reportBucket: bucketConfig{name: "photos"},
			},
			key:  "reports/a.jpg",
			want: "http://fake-gcs:4443/storage/v1/b/photos/o/reports%2Fa.jpg?alt=media",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.bs.GetPublicURL(BucketCategoryReportPhoto, tc.key); got != tc.want {
				t.Fatalf("GetPublicURL: want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestContentTypeRoundTrip(t *testing.T) {
	for _, ct := range []string{"image/jpeg", "image/png", "image/webp", "image/gif"} {
		if got := ContentTypeForKey("x" + ExtensionForContentType(ct)); got != ct {
			t.Fatalf("content type %s: got=%s", ct, got)
		}
	}
}

func TestMemoryBucketService(t *testing.T) {
	m := NewMemoryBucketService(logger.Nop(), "http://localhost:8080/media/")
	ctx := context.Background()

	if err := m.UploadFile(ctx, BucketCategoryReportPhoto, "reports/1.jpg", strings.NewReader("jpeg"), ""); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	r, ct, ok := m.Open(BucketCategoryReportPhoto, "reports/1.jpg")
	if !ok || ct != "image/jpeg" {
		t.Fatalf("Open: ok=%v ct=%s", ok, ct)
	}
	body, _ := io.ReadAll(r)
	if string(body) != "jpeg" {
		t.Fatalf("Open: want=jpeg got=%q", body)
	}
	if got := m.GetPublicURL(BucketCategoryReportPhoto, "reports/1.jpg"); got != "http://localhost:8080/media/report_photo/reports/1.jpg" {
		t.Fatalf("GetPublicURL: got=%s", got)
	}
	if err := m.DeleteFile(ctx, BucketCategoryReportPhoto, "reports/1.jpg"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if err := m.DeleteFile(ctx, BucketCategoryReportPhoto, "reports/1.jpg"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("DeleteFile(missing): want ErrObjectNotFound got=%v", err)
	}
}

func TestEvaluateSafeSearch(t *testing.T) {
	cases := []struct {
		name    string
		ann     *visionpb.SafeSearchAnnotation
		allowed bool
	}{
		{"nil annotation", nil, true},
		{"clean", &visionpb.SafeSearchAnnotation{Adult: visionpb.Likelihood_VERY_UNLIKELY, Violence: visionpb.Likelihood_POSSIBLE}, true},
		{"adult", &visionpb.SafeSearchAnnotation{Adult: visionpb.Likelihood_VERY_LIKELY}, false},
		{"violence at threshold", &visionpb.SafeSearchAnnotation{Violence: visionpb.Likelihood_LIKELY}, false},
		{"racy only", &visionpb.SafeSearchAnnotation{Racy: visionpb.Likelihood_VERY_LIKELY}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := EvaluateSafeSearch(tc.ann, visionpb.Likelihood_LIKELY)
			if v.Allowed != tc.allowed {
				t.Fatalf("EvaluateSafeSearch: want allowed=%v got=%v reasons=%v", tc.allowed, v.Allowed, v.Reasons)
			}
		})
	}
	if ParseLikelihood("possible") != visionpb.Likelihood_POSSIBLE {
		t.Fatalf("ParseLikelihood(possible)")
	}
	if ParseLikelihood("nonsense") != visionpb.Likelihood_LIKELY {
		t.Fatalf("ParseLikelihood(nonsense): want LIKELY")
	}
}
