package response

import (
	"testing"
	"time"

	"github.com/attunelabs/attune/internal/dissociation"
)

func TestTechniqueFor(t *testing.T) {
	tests := []struct {
		name        string
		severity    dissociation.Severity
		preferences []Technique
		want        Technique
	}{
		{"severe no preferences", dissociation.SeveritySevere, nil, TechniqueSensory},
		{"moderate no preferences", dissociation.SeverityModerate, nil, TechniqueMovement},
		{"mild no preferences", dissociation.SeverityMild, nil, TechniqueCognitive},
		{"potential no preferences", dissociation.SeverityPotential, nil, TechniqueCognitive},
		{"severe primary excluded", dissociation.SeveritySevere, []Technique{TechniqueBreathing}, TechniqueBreathing},
		{"severe both excluded falls back", dissociation.SeveritySevere, []Technique{TechniqueNaming}, TechniqueBreathing},
		{"moderate primary allowed", dissociation.SeverityModerate, []Technique{TechniqueMovement, TechniqueNaming}, TechniqueMovement},
		{"unknown severity uses mild pair", dissociation.Severity("bogus"), nil, TechniqueCognitive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TechniqueFor(tt.severity, tt.preferences); got != tt.want {
				t.Errorf("TechniqueFor(%s, %v) = %s, want %s", tt.severity, tt.preferences, got, tt.want)
			}
		})
	}
}

func TestGrounding_PerTechnique(t *testing.T) {
	st := baseState(time.Now())

	for _, technique := range []Technique{
		TechniqueBreathing, TechniqueSensory, TechniqueMovement, TechniqueCognitive, TechniqueNaming,
	} {
		r := Grounding(dissociation.SeverityModerate, technique, st)
		if r.Type != TypeGrounding {
			t.Errorf("%s: type = %s, want grounding", technique, r.Type)
		}
		if r.Action.Kind == "" {
			t.Errorf("%s: missing action", technique)
		}
		if r.Verbal == "" {
			t.Errorf("%s: missing verbal prompt", technique)
		}
		if r.Duration != 8*time.Second {
			t.Errorf("%s: duration = %v, want 8s", technique, r.Duration)
		}
	}
}

func TestGrounding_InterventionScalesWithSeverity(t *testing.T) {
	st := baseState(time.Now())

	tests := []struct {
		severity dissociation.Severity
		want     InterventionLevel
	}{
		{dissociation.SeveritySevere, InterventionIntensive},
		{dissociation.SeverityModerate, InterventionSignificant},
		{dissociation.SeverityMild, InterventionModerate},
		{dissociation.SeverityPotential, InterventionModerate},
	}
	for _, tt := range tests {
		r := Grounding(tt.severity, TechniqueBreathing, st)
		if r.Intervention != tt.want {
			t.Errorf("severity %s: intervention = %s, want %s", tt.severity, r.Intervention, tt.want)
		}
	}
}

func TestCalming(t *testing.T) {
	st := baseState(time.Now())
	r := Calming(st)

	if r.Type != TypeRegulation {
		t.Errorf("type = %s, want regulation", r.Type)
	}
	if r.Intervention != InterventionIntensive {
		t.Errorf("intervention = %s, want intensive", r.Intervention)
	}
	if r.Action.Kind != ActionBreathing {
		t.Errorf("action kind = %s, want breathing", r.Action.Kind)
	}
	if r.Duration != 10*time.Second {
		t.Errorf("duration = %v, want 10s", r.Duration)
	}
}
