package scoring

import (
	"os"
	"path/filepath"
	"testing"

	types "github.com/migralert/migralert-backend/internal/domain"
)

func TestEmbeddedPolicyMatchesDefault(t *testing.T) {
	t.Setenv(policyPathEnv, "")
	p, err := LoadPolicy()
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p != DefaultPolicy() {
		t.Fatalf("embedded policy: want=%+v got=%+v", DefaultPolicy(), p)
	}
}

func TestLoadPolicyFallsBackOnInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	bad := []byte("policy: report_confidence\nrates:\n  confirm: 0.2\n  no_longer_active: 0.4\n  false: 0.3\n")
	if err := os.WriteFile(path, bad, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(policyPathEnv, path)
	p, err := LoadPolicy()
	if err == nil {
		t.Fatalf("LoadPolicy: expected validation error")
	}
	if p != DefaultPolicy() {
		t.Fatalf("LoadPolicy: expected default policy on error")
	}
}

func TestValidateRequiresPhotoBonus(t *testing.T) {
	for _, scores := range [][2]int{{40, 40}, {30, 40}} {
		p := DefaultPolicy()
		p.Initial.WithPhoto, p.Initial.WithoutPhoto = scores[0], scores[1]
		if err := p.Validate(); err == nil {
			t.Fatalf("Validate(with=%d without=%d): expected error", scores[0], scores[1])
		}
	}
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy: %v", err)
	}
}

func TestInitialScore(t *testing.T) {
	s := Default()
	if got := s.InitialScore(true); got != 70 {
		t.Fatalf("InitialScore(photo): want=70 got=%d", got)
	}
	if got := s.InitialScore(false); got != 40 {
		t.Fatalf("InitialScore(no photo): want=40 got=%d", got)
	}
}

func TestApplySteps(t *testing.T) {
	s := Default()
	tests := []struct {
		name string
		cur  int
		typ  types.InteractionType
		want int
	}{
		{"confirm from 70", 70, types.InteractionConfirm, 76},
		{"confirm from 40", 40, types.InteractionConfirm, 52},
		{"confirm at max", 100, types.InteractionConfirm, 100},
		{"confirm near max", 99, types.InteractionConfirm, 100},
		{"inactive from 40", 40, types.InteractionNoLongerActive, 34},
		{"false from 40", 40, types.InteractionFalse, 26},
		{"false from 70", 70, types.InteractionFalse, 45},
		{"false at min", 0, types.InteractionFalse, 0},
		{"false near min", 1, types.InteractionFalse, 0},
		{"input clamped high", 250, types.InteractionFalse, 65},
		{"input clamped low", -5, types.InteractionConfirm, 20},
		{"unknown type", 40, types.InteractionType("meh"), 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Apply(tt.cur, tt.typ); got != tt.want {
				t.Fatalf("Apply(%d,%s): want=%d got=%d", tt.cur, tt.typ, tt.want, got)
			}
		})
	}
}

func TestApplyBoundsAndMonotonicity(t *testing.T) {
	s := Default()
	for cur := -10; cur <= 110; cur++ {
		c := Clamp(cur)
		up := s.Apply(cur, types.InteractionConfirm)
		if up < c || up > MaxScore {
			t.Fatalf("confirm(%d): got=%d", cur, up)
		}
		for _, typ := range []types.InteractionType{types.InteractionFalse, types.InteractionNoLongerActive} {
			down := s.Apply(cur, typ)
			if down > c || down < MinScore {
				t.Fatalf("%s(%d): got=%d", typ, cur, down)
			}
		}
		if c > 0 && s.Apply(cur, types.InteractionFalse) > s.Apply(cur, types.InteractionNoLongerActive) {
			t.Fatalf("false must weigh more than no_longer_active at %d", cur)
		}
	}
}

func TestApplyConverges(t *testing.T) {
	s := Default()
	score := 40
	for i := 0; i < 100; i++ {
		score = s.Apply(score, types.InteractionConfirm)
	}
	if score != 100 {
		t.Fatalf("confirm convergence: want=100 got=%d", score)
	}
	for i := 0; i < 100; i++ {
		score = s.Apply(score, types.InteractionFalse)
	}
	if score != 0 {
		t.Fatalf("false convergence: want=0 got=%d", score)
	}
}

func TestLevel(t *testing.T) {
	s := Default()
	tests := []struct {
		score int
		want  ConfidenceLevel
	}{
		{100, LevelHigh},
		{70, LevelHigh},
		{69, LevelMedium},
		{40, LevelMedium},
		{39, LevelLow},
		{20, LevelLow},
		{19, LevelPending},
		{0, LevelPending},
	}
	for _, tt := range tests {
		if got := s.Level(tt.score); got != tt.want {
			t.Fatalf("Level(%d): want=%s got=%s", tt.score, tt.want, got)
		}
	}
}

func TestNextStatus(t *testing.T) {
	s := Default()
	if got := s.NextStatus(types.ReportStatusPending, 90, 2, 0); got != types.ReportStatusVerified {
		t.Fatalf("verify: want=verified got=%s", got)
	}
	if got := s.NextStatus(types.ReportStatusPending, 90, 1, 0); got != types.ReportStatusPending {
		t.Fatalf("verify needs confirms: want=pending got=%s", got)
	}
	if got := s.NextStatus(types.ReportStatusVerified, 8, 2, 3); got != types.ReportStatusRemoved {
		t.Fatalf("collapse: want=removed got=%s", got)
	}
	if got := s.NextStatus(types.ReportStatusPending, 8, 0, 2); got != types.ReportStatusPending {
		t.Fatalf("collapse needs false reports: want=pending got=%s", got)
	}
	if got := s.NextStatus(types.ReportStatusRemoved, 100, 9, 0); got != types.ReportStatusRemoved {
		t.Fatalf("removed is terminal: got=%s", got)
	}
}
